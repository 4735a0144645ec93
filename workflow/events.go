package workflow

import "github.com/tailored-agentic-units/flow/observability"

const (
	EventTaskStart       observability.EventType = "workflow.task.start"
	EventTaskComplete    observability.EventType = "workflow.task.complete"
	EventMissingTask     observability.EventType = "workflow.missing_task"
	EventCascadeAdvance  observability.EventType = "workflow.cascade.advance"
	EventParentNotify    observability.EventType = "workflow.cascade.parent_notify"
	EventRootCleanup     observability.EventType = "workflow.root.cleanup"
	EventRootIncomplete  observability.EventType = "workflow.root.cleanup_incomplete"
	EventCorrelationReg  observability.EventType = "workflow.correlation.register"
	EventDispatch        observability.EventType = "workflow.correlation.dispatch"
	EventDeliverySkipped observability.EventType = "workflow.delivery.skipped"
	EventTriggerFire     observability.EventType = "workflow.trigger.fire"
	EventTriggerArm      observability.EventType = "workflow.trigger.arm"
	EventParallelJoin    observability.EventType = "workflow.parallel.join"
)
