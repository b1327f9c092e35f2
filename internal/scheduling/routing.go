package scheduling

import (
	"context"
	"strings"

	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

// SessionCategory classifies a session for calendar routing. Only ongoing
// therapy belongs on the provider's own calendar; everything office staff
// coordinate, from first contact through intake and assessment, stays on the
// shared admin calendar regardless of provider.
type SessionCategory string

const (
	CategoryTherapy      SessionCategory = "therapy"
	CategoryConsultation SessionCategory = "consultation"
	CategoryIntake       SessionCategory = "intake"
	CategoryAssessment   SessionCategory = "assessment"
	CategoryOnboarding   SessionCategory = "onboarding"
	CategoryIntroduction SessionCategory = "introduction"
	CategoryDemo         SessionCategory = "demo"
)

// Administrative reports whether the category is scheduled by office staff on
// the shared calendar rather than on the provider's own.
func (c SessionCategory) Administrative() bool {
	switch c {
	case CategoryConsultation, CategoryIntake, CategoryAssessment,
		CategoryOnboarding, CategoryIntroduction, CategoryDemo:
		return true
	}
	return false
}

// CategoryFromSessionType maps free-form session type labels from older
// clients onto a category. Matching is case-insensitive on substrings since
// legacy labels carry prefixes like "Initial Intake Call". Unrecognized
// labels default to therapy, the provider-owned case.
func CategoryFromSessionType(sessionType string) SessionCategory {
	s := strings.ToLower(sessionType)
	switch {
	case strings.Contains(s, "intro"):
		return CategoryIntroduction
	case strings.Contains(s, "demo"):
		return CategoryDemo
	case strings.Contains(s, "onboard"):
		return CategoryOnboarding
	case strings.Contains(s, "intake"):
		return CategoryIntake
	case strings.Contains(s, "assess"):
		return CategoryAssessment
	case strings.Contains(s, "consult"):
		return CategoryConsultation
	default:
		return CategoryTherapy
	}
}

// RouteRequest describes a scheduling operation to be placed on a calendar.
// SessionType is consulted only when Category is empty.
type RouteRequest struct {
	Category           SessionCategory
	SessionType        string
	ProviderID         string
	ForceAdminCalendar bool
}

// RoutingAuditor records routing decisions for compliance review.
type RoutingAuditor interface {
	RecordRoutingDecision(ctx context.Context, providerID string, decision RoutingDecision)
}

// Router decides which calendar an operation targets.
type Router struct {
	directory *Directory
	auditor   RoutingAuditor
	logger    *logging.Logger
}

func NewRouter(directory *Directory, auditor RoutingAuditor, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{directory: directory, auditor: auditor, logger: logger.Component("calendar-router")}
}

// AdminCalendarID exposes the shared calendar identity for callers that need
// to retarget an operation after routing, such as the auth-failure fallback.
func (r *Router) AdminCalendarID() string {
	return r.directory.AdminCalendarID()
}

// DecideTarget applies the routing rules in order: explicit override, then
// administrative session types, then provider resolution, and finally the
// admin calendar when no provider is named. UsedFallback is only set when a
// provider-owned session could not reach the provider's own calendar.
func (r *Router) DecideTarget(ctx context.Context, req RouteRequest) RoutingDecision {
	category := req.Category
	if category == "" {
		category = CategoryFromSessionType(req.SessionType)
	}

	var decision RoutingDecision
	switch {
	case req.ForceAdminCalendar:
		decision = RoutingDecision{
			TargetCalendarID: r.directory.AdminCalendarID(),
			Reason:           "explicit override",
		}
	case category.Administrative():
		decision = RoutingDecision{
			TargetCalendarID: r.directory.AdminCalendarID(),
			Reason:           "admin session type",
		}
	case req.ProviderID != "":
		info := r.directory.Resolve(ctx, req.ProviderID)
		decision = RoutingDecision{
			TargetCalendarID: info.CalendarID,
			UsedFallback:     !info.IsConfigured,
			Reason:           "provider session",
		}
	default:
		decision = RoutingDecision{
			TargetCalendarID: r.directory.AdminCalendarID(),
			Reason:           "no provider specified",
		}
	}

	r.logger.Info("routed scheduling operation",
		"category", string(category),
		"provider_id", req.ProviderID,
		"target_calendar_id", decision.TargetCalendarID,
		"used_fallback", decision.UsedFallback,
		"reason", decision.Reason)
	if r.auditor != nil {
		r.auditor.RecordRoutingDecision(ctx, req.ProviderID, decision)
	}
	return decision
}
