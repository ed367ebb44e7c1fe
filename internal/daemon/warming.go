/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package daemon

import (
	"context"

	"github.com/launix-de/notebookd/internal/config"
	"github.com/launix-de/notebookd/internal/logging"
	"github.com/launix-de/notebookd/internal/pool"
	"github.com/launix-de/notebookd/internal/scheduler"
)

// startWarmingLoop wires one pool's maintenance loop to the scheduler
// on config.ReplenishInterval (spec.md §4.J/§4.F: "One task per pool;
// runs the maintenance loop on a timer"). Returns a stop func torn
// down during Shutdown.
func startWarmingLoop(sched *scheduler.Scheduler, p *pool.Pool, name string) (stop func()) {
	return sched.ScheduleEvery(config.ReplenishInterval, func() {
		p.MaintenanceTick(context.Background())
	})
}

// logPoolState is installed as a Pool.Subscribe callback so warming
// and backoff transitions land in the structured log. While failures
// are recorded it logs the pool counts, the consecutive-failure count,
// the last error and the failed package (if extracted); the backoff
// window before the next retry is not logged.
func logPoolState(name string) func(pool.State) {
	return func(s pool.State) {
		if s.Failure.ConsecutiveFailures > 0 {
			logging.Warnf("pool."+name, "available=%d warming=%d target=%d consecutive_failures=%d last_error=%q failed_package=%q",
				s.Available, s.Warming, s.Target, s.Failure.ConsecutiveFailures, s.Failure.LastError, s.Failure.FailedPackage)
			return
		}
		logging.Debugf("pool."+name, "available=%d warming=%d target=%d", s.Available, s.Warming, s.Target)
	}
}
