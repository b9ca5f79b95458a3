package schedule

import (
	"testing"

	"seller-data-scheduler/internal/models"
)

func TestForDayTotality(t *testing.T) {
	for d := 0; d <= 6; d++ {
		first := ForDay(d)
		if len(first) == 0 {
			t.Fatalf("day %d returned empty job set", d)
		}
		second := ForDay(d)
		if len(first) != len(second) {
			t.Fatalf("day %d not deterministic: %d vs %d keys", d, len(first), len(second))
		}
		for k := range first {
			if _, ok := second[k]; !ok {
				t.Fatalf("day %d second call missing key %s", d, k)
			}
		}
		// Daily jobs must be present every day.
		for _, e := range dailyGroup {
			if _, ok := first[e.JobKey]; !ok {
				t.Fatalf("day %d missing daily job %s", d, e.JobKey)
			}
		}
	}
}

func TestMondayUnion(t *testing.T) {
	jobs := ForDay(1)
	for _, e := range monWedFriGroup {
		if _, ok := jobs[e.JobKey]; !ok {
			t.Fatalf("monday missing mon/wed/fri job %s", e.JobKey)
		}
	}
	for _, e := range sundayGroup {
		if _, ok := jobs[e.JobKey]; ok {
			t.Fatalf("monday must not contain sunday job %s", e.JobKey)
		}
	}
	for _, e := range saturdayGroup {
		if _, ok := jobs[e.JobKey]; ok {
			t.Fatalf("monday must not contain saturday job %s", e.JobKey)
		}
	}
	for _, e := range otherDaysGroup {
		if _, ok := jobs[e.JobKey]; ok {
			t.Fatalf("monday must not contain other-days job %s", e.JobKey)
		}
	}
	if want := len(dailyGroup) + len(monWedFriGroup); len(jobs) != want {
		t.Fatalf("monday job count = %d, want %d", len(jobs), want)
	}
}

func TestSundayMergesBothGroups(t *testing.T) {
	jobs := ForDay(0)
	if !ShouldRun("reimbursementEstimate", 0) {
		t.Fatal("sunday missing reimbursementEstimate")
	}
	// Other-days group is merged on Sunday as well; the double
	// membership union is intentional.
	if _, ok := jobs["mcpBuyBoxData"]; !ok {
		t.Fatal("sunday missing other-days job mcpBuyBoxData")
	}
	if _, ok := jobs["keywordRecommendations"]; ok {
		t.Fatal("sunday must not contain mon/wed/fri jobs")
	}
}

func TestShouldRun(t *testing.T) {
	if !ShouldRun("performanceReport", 2) {
		t.Fatal("daily job must run on any day")
	}
	if ShouldRun("brandAnalytics", 1) {
		t.Fatal("saturday job must not run on monday")
	}
	if ShouldRun("noSuchJob", 3) {
		t.Fatal("unknown key must not be scheduled")
	}
}

func TestBatchIndexesValid(t *testing.T) {
	for d := 0; d <= 6; d++ {
		for key, e := range ForDay(d) {
			if e.BatchIndex < 1 || e.BatchIndex > NumBatches {
				t.Fatalf("job %s has batch index %d outside 1..%d", key, e.BatchIndex, NumBatches)
			}
			if e.DataKey == "" || e.Kind == "" {
				t.Fatalf("job %s missing data key or kind", key)
			}
		}
	}
}

func TestDependentJobsInLateBatches(t *testing.T) {
	for _, e := range ForDay(1) {
		if e.Kind == models.KindDependentAdsReport && e.BatchIndex < 3 {
			t.Fatalf("dependent job %s scheduled before its inputs exist (batch %d)", e.JobKey, e.BatchIndex)
		}
	}
}

func TestCriticalSet(t *testing.T) {
	crit := CriticalSet()
	for _, key := range []string{"performanceReport", "campaignData", "mcpEconomicsData"} {
		if !crit[key] {
			t.Fatalf("critical set missing %s", key)
		}
	}
	if crit["ppcBySku"] {
		t.Fatal("ppcBySku must not be critical")
	}
}
