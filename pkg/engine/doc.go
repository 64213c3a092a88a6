// Package engine runs per-location sync tasks in phases.
//
// A cycle runs the phases in a fixed order:
//
//	inventory -> enrichment -> discounts -> cache_refresh -> external_push
//
// Each phase runs its Task once per location through a PhaseRunner and
// finishes for every location before the next phase starts. A task error or
// panic is recorded as a failed PhaseResult for that location and nothing
// else. Later phases always run and work from whatever state earlier phases
// left behind.
//
// # Usage
//
//	orch, err := engine.NewOrchestrator(engine.OrchestratorConfig{
//	    Locations: locations,
//	    Tasks: map[engine.Phase]engine.Task{
//	        engine.PhaseInventory:    inventoryTask,
//	        engine.PhaseCacheRefresh: cacheTask,
//	    },
//	    Runner: engine.NewPhaseRunner(engine.WithMaxParallel(4)),
//	})
//	if err != nil {
//	    return err // engine.ErrNoLocations is fatal
//	}
//	summary := orch.RunCycle(ctx)
//	fmt.Println(summary.TotalSynced, summary.TotalErrors)
//
// A Trigger repeats RunCycle on an interval and runs RunExport once per day
// when its DailyGate opens.
package engine
