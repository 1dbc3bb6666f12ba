// Package temporal runs discovery sessions as Temporal workflows.
//
// The package holds the client side: DiscoveryWorkflowClient starts manual
// runs and the nightly cron, describes and cancels them and queries their
// progress. WorkerManager hosts the worker. Workflow code lives in the
// workflows subpackage and the activities it schedules in activities.
//
// A session's workflow ID is "discovery-<session id>", so a session can run
// at most once:
//
//	wfClient := temporal.NewDiscoveryWorkflowClient(c, cfg)
//	workflowID, runID, err := wfClient.Start(ctx, temporal.DiscoveryInput{
//	    KeywordQuery: "bulgaria education grants",
//	})
//	if temporal.IsWorkflowAlreadyStarted(err) {
//	    // the session is already running
//	}
//
// Errors from the client are *TemporalError values; errors.Is matches them
// against the Err* sentinels.
package temporal
