package tasks

// DefineTasks registers all available tasks against the global registry.
func DefineTasks(t *WebhookTasks) {
	RegisterHandler(TaskProcessWebhook, t.ProcessEvent)
	RegisterHandler(TaskRetrySweep, t.RetrySweep)
	RegisterHandler(TaskRequeueStalePending, t.RequeueStalePending)
	RegisterHandler(TaskCleanupExpiredSessions, t.CleanupExpiredSessions)
}
