// Package metrics computes performance figures from task records. All
// functions are pure: they read the slices they are given and touch no
// storage.
package metrics

import (
	"time"

	"joddb/internal/pipeline"
)

// Policy carries the tunables the calculations depend on.
type Policy struct {
	// WorkdaySeconds is the nominal shift length used for utilization.
	WorkdaySeconds int64
}

// Efficiency returns a task's standard-versus-actual ratio as a percentage.
// The boolean is false when the task has no usable actual duration, which
// keeps unmeasured work out of averages instead of skewing them with zeros.
func Efficiency(task *pipeline.Task) (float64, bool) {
	if task == nil {
		return 0, false
	}
	return task.Efficiency()
}

// TechnicianDay is one technician's performance snapshot for a calendar day.
type TechnicianDay struct {
	Technician        string
	Date              time.Time
	TasksAssigned     int
	TasksCompleted    int
	AverageEfficiency float64
	Productivity      float64
	Utilization       float64
}

// TechnicianDaily summarizes one technician's day from the given tasks.
// A task counts as assigned when it was worked on the date, meaning its
// work started or ended then; an overnight task counts toward the day it
// finishes. Completion requires the work to end on the date. Productivity
// credits each completed task at most one unit, so fast work cannot
// inflate the figure past the assignment count. Utilization is the
// measured time against the nominal workday, capped at 100.
func TechnicianDaily(tasks []*pipeline.Task, technician string, date time.Time, policy Policy) TechnicianDay {
	day := TechnicianDay{Technician: technician, Date: date}

	var effSum float64
	var effCount int
	var creditSum float64
	var workedSeconds int64

	for _, task := range tasks {
		if task == nil || task.Technician != technician {
			continue
		}
		startedToday := task.StartTime != nil && sameDay(*task.StartTime, date)
		endedToday := task.EndTime != nil && sameDay(*task.EndTime, date)
		if startedToday || endedToday {
			day.TasksAssigned++
		}
		if !endedToday {
			continue
		}
		day.TasksCompleted++
		if task.ActualSeconds != nil {
			workedSeconds += *task.ActualSeconds
		}
		if eff, ok := task.Efficiency(); ok {
			effSum += eff
			effCount++
			creditSum += min(1, eff/100)
		}
	}

	if effCount > 0 {
		day.AverageEfficiency = effSum / float64(effCount)
	}
	if day.TasksAssigned > 0 {
		day.Productivity = creditSum / float64(day.TasksAssigned) * 100
	}
	if policy.WorkdaySeconds > 0 {
		day.Utilization = float64(workedSeconds) / float64(policy.WorkdaySeconds) * 100
		if day.Utilization > 100 {
			day.Utilization = 100
		}
	}
	return day
}

// OrderProgress is a job order's completion rollup.
type OrderProgress struct {
	JobOrderID      int64
	Code            string
	ProgressPercent float64
	TotalCompleted  int
	TotalRejected   int
	TotalDevices    int
}

// JobOrderProgress rolls the order's tasks up into a progress figure.
// Progress is completed devices over total devices, clamped to [0, 100];
// an order declaring zero devices reports zero progress.
func JobOrderProgress(order *pipeline.JobOrder, tasks []*pipeline.Task) OrderProgress {
	progress := OrderProgress{}
	if order == nil {
		return progress
	}
	progress.JobOrderID = order.ID
	progress.Code = order.Code
	progress.TotalDevices = order.TotalDevices

	for _, task := range tasks {
		if task == nil || task.JobOrderID != order.ID {
			continue
		}
		switch task.Status {
		case pipeline.StatusCompleted:
			progress.TotalCompleted++
		case pipeline.StatusReworkRequired:
			progress.TotalRejected++
		}
	}

	if progress.TotalDevices > 0 {
		progress.ProgressPercent = float64(progress.TotalCompleted) / float64(progress.TotalDevices) * 100
		if progress.ProgressPercent > 100 {
			progress.ProgressPercent = 100
		}
		if progress.ProgressPercent < 0 {
			progress.ProgressPercent = 0
		}
	}
	return progress
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
