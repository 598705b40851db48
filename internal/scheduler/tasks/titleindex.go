// Package tasks defines the background jobs wired into the scheduler.
package tasks

import (
	"github.com/animemeta/animemeta/internal/anidb"
	"github.com/animemeta/animemeta/internal/scheduler"
)

// TitleIndexRefresh rebuilds the anidb title search index when the
// underlying dump has expired. Running it off-peak keeps the multi-minute
// rebuild away from request latency; the run-on-start warms the index
// before the first search arrives.
func TitleIndexRefresh(index *anidb.TitleIndex) scheduler.TaskConfig {
	return scheduler.TaskConfig{
		ID:          "titleindex-refresh",
		Name:        "Title Index Refresh",
		Description: "Fetches the anidb titles dump and rebuilds the search index when expired",
		Cron:        "30 4 * * *",
		RunOnStart:  true,
		Func:        index.Refresh,
	}
}
