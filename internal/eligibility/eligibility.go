// Package eligibility evaluates health questionnaire answers.
// This is pure domain logic - no I/O, no clock reads. Callers pass "today" and
// any facts they looked up (such as the last completed donation) in the answers.
package eligibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/kkkkikiki/blooddrive/internal/model"
)

const (
	// CooldownDays is the minimum interval between two donations.
	CooldownDays = 56
	// MinWeightKg is the lowest accepted body weight.
	MinWeightKg = 50

	reasonSeparator = "; "
)

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Status           model.EligibilityStatus
	Reasons          []string
	NextEligibleDate *time.Time
	// Triggered names the rules that fired, in evaluation order.
	Triggered []string
}

// JoinedReasons returns the reasons in storage form, or nil when there are none.
func (v Verdict) JoinedReasons() *string {
	if len(v.Reasons) == 0 {
		return nil
	}
	joined := strings.Join(v.Reasons, reasonSeparator)
	return &joined
}

// finding is what a single rule contributes.
type finding struct {
	reason       string
	nextEligible *time.Time
}

// rule checks one condition. Rules run in table order and each may append one reason.
type rule struct {
	name  string
	check func(a model.HealthAnswers, today time.Time) (finding, bool)
}

func flag(reason string, get func(a model.HealthAnswers) bool) func(model.HealthAnswers, time.Time) (finding, bool) {
	return func(a model.HealthAnswers, _ time.Time) (finding, bool) {
		if get(a) {
			return finding{reason: reason}, true
		}
		return finding{}, false
	}
}

var rules = []rule{
	{"weight", func(a model.HealthAnswers, _ time.Time) (finding, bool) {
		if a.WeightKg < MinWeightKg {
			return finding{reason: fmt.Sprintf("Body weight below %d kg", MinWeightKg)}, true
		}
		return finding{}, false
	}},
	{"cooldown", checkCooldown},
	{"chronic_disease", flag("Has chronic disease - requires medical review",
		func(a model.HealthAnswers) bool { return a.HasChronicDisease })},
	{"recent_surgery", flag("Recent surgery - must wait 6 months",
		func(a model.HealthAnswers) bool { return a.HadRecentSurgery })},
	{"tattoo_piercing", flag("Recent tattoo or piercing - must wait 6 months",
		func(a model.HealthAnswers) bool { return a.HadRecentTattooPiercing })},
	{"pregnancy", flag("Pregnancy or breastfeeding - cannot donate",
		func(a model.HealthAnswers) bool { return a.IsPregnantOrBreastfeeding })},
	{"endemic_travel", flag("Recent travel to an endemic area - requires review",
		func(a model.HealthAnswers) bool { return a.HadRecentTravelToEndemicAreas })},
	{"risky_behavior", flag("Risky behavior - not eligible",
		func(a model.HealthAnswers) bool { return a.HasRiskyBehavior })},
	{"covid", flag("Recent COVID-19 - must wait 14 days",
		func(a model.HealthAnswers) bool { return a.HadCovidRecently })},
	{"vaccine", flag("Recent vaccination - must wait 7 days",
		func(a model.HealthAnswers) bool { return a.ReceivedVaccineRecently })},
}

// reviewFlags need manual adjudication. When any is set and the answers have at
// least one reason, the verdict is REQUIRES_REVIEW instead of NOT_ELIGIBLE.
var reviewFlags = []func(a model.HealthAnswers) bool{
	func(a model.HealthAnswers) bool { return a.HasChronicDisease },
	func(a model.HealthAnswers) bool { return a.IsTakingMedication },
	func(a model.HealthAnswers) bool { return a.HadRecentTravelToEndemicAreas },
}

func checkCooldown(a model.HealthAnswers, today time.Time) (finding, bool) {
	if a.LastDonationDate == nil {
		return finding{}, false
	}
	last := model.DateOf(*a.LastDonationDate)
	elapsed := DaysBetween(last, today)
	if elapsed >= CooldownDays {
		return finding{}, false
	}
	next := NextEligibleDate(last)
	return finding{
		reason:       fmt.Sprintf("Must wait %d more days since last donation", CooldownDays-elapsed),
		nextEligible: &next,
	}, true
}

// Evaluate applies every rule to the answers and reduces the findings to a verdict.
// The previous verdict of a questionnaire is never an input.
func Evaluate(a model.HealthAnswers, today time.Time) Verdict {
	today = model.DateOf(today)

	var v Verdict
	for _, r := range rules {
		f, triggered := r.check(a, today)
		if !triggered {
			continue
		}
		v.Reasons = append(v.Reasons, f.reason)
		v.Triggered = append(v.Triggered, r.name)
		if f.nextEligible != nil {
			v.NextEligibleDate = f.nextEligible
		}
	}
	v.Status = reduce(a, v.Reasons)
	return v
}

func reduce(a model.HealthAnswers, reasons []string) model.EligibilityStatus {
	if len(reasons) == 0 {
		return model.Eligible
	}
	for _, needsReview := range reviewFlags {
		if needsReview(a) {
			return model.RequiresReview
		}
	}
	return model.NotEligible
}

// NextEligibleDate is the first date a donor may give again after donating on last.
func NextEligibleDate(last time.Time) time.Time {
	return model.DateOf(last).AddDate(0, 0, CooldownDays)
}

// DaysBetween counts whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(model.DateOf(b).Sub(model.DateOf(a)).Hours() / 24)
}
