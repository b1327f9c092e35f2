package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/wellspring-care/teletherapy-platform/internal/observability/metrics"
	"github.com/wellspring-care/teletherapy-platform/internal/providers"
	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

const defaultDirectoryTTL = 5 * time.Minute

// ProfileStore loads provider calendar settings from persistence.
type ProfileStore interface {
	GetCalendarProfile(ctx context.Context, providerID string) (*providers.CalendarProfile, error)
}

// Directory resolves providers to calendar identities. Resolution never
// fails: any problem loading a profile falls back to the administrative
// calendar so booking flows stay alive.
type Directory struct {
	store           ProfileStore
	cache           Cache
	adminCalendarID string
	ttl             time.Duration
	logger          *logging.Logger
	metrics         *metrics.SchedulingMetrics
}

// DirectoryOptions configures a Directory. AdminCalendarID is required.
type DirectoryOptions struct {
	Store           ProfileStore
	Cache           Cache
	AdminCalendarID string
	TTL             time.Duration
	Logger          *logging.Logger
	Metrics         *metrics.SchedulingMetrics
}

func NewDirectory(opts DirectoryOptions) *Directory {
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultDirectoryTTL
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Directory{
		store:           opts.Store,
		cache:           opts.Cache,
		adminCalendarID: opts.AdminCalendarID,
		ttl:             opts.TTL,
		logger:          opts.Logger.Component("calendar-directory"),
		metrics:         opts.Metrics,
	}
}

// Resolve returns the calendar identity for a provider. An empty provider id
// resolves to the administrative calendar. Lookup failures resolve to the
// administrative calendar and are not cached, so the next call retries the
// store.
func (d *Directory) Resolve(ctx context.Context, providerID string) ProviderCalendarInfo {
	if providerID == "" {
		return d.adminInfo("")
	}
	if info, ok := d.cache.Get(ctx, providerID); ok {
		d.metrics.ObserveDirectoryLookup("hit")
		return info
	}

	profile, err := d.store.GetCalendarProfile(ctx, providerID)
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			d.logger.Warn("provider has no calendar profile, using admin calendar",
				"provider_id", providerID)
			info := d.adminInfo(providerID)
			d.cache.Set(ctx, providerID, info, d.ttl)
			d.metrics.ObserveDirectoryLookup("miss")
			return info
		}
		d.logger.Error("calendar profile lookup failed, using admin calendar",
			"provider_id", providerID, "error", err)
		d.metrics.ObserveDirectoryLookup("fallback")
		return d.adminInfo(providerID)
	}

	info := d.fromProfile(*profile)
	d.cache.Set(ctx, providerID, info, d.ttl)
	d.metrics.ObserveDirectoryLookup("miss")
	return info
}

// Invalidate drops a provider's cached identity, forcing the next Resolve to
// hit the store. Called after calendar settings change.
func (d *Directory) Invalidate(ctx context.Context, providerID string) {
	d.cache.Delete(ctx, providerID)
}

// InvalidateAll drops every cached identity.
func (d *Directory) InvalidateAll(ctx context.Context) {
	d.cache.Flush(ctx)
}

// AdminCalendarID exposes the fallback calendar id for routing decisions.
func (d *Directory) AdminCalendarID() string {
	return d.adminCalendarID
}

func (d *Directory) adminInfo(providerID string) ProviderCalendarInfo {
	return ProviderCalendarInfo{
		ProviderID:   providerID,
		CalendarID:   d.adminCalendarID,
		IsConfigured: false,
	}
}

// fromProfile maps stored settings to a calendar identity. A dedicated
// calendar id wins; otherwise a delegated email doubles as the calendar id in
// Google's model. Either way the delegated setup must be flagged as having
// working permissions or we stay on the admin calendar.
func (d *Directory) fromProfile(p providers.CalendarProfile) ProviderCalendarInfo {
	info := ProviderCalendarInfo{
		ProviderID:     p.ProviderID,
		DelegatedEmail: p.DelegatedEmail,
		DisplayName:    p.DisplayName,
		Timezone:       p.Timezone,
	}
	switch {
	case p.PermissionsConfigured && p.CalendarID != "":
		info.CalendarID = p.CalendarID
		info.IsConfigured = true
	case p.PermissionsConfigured && p.DelegatedEmail != "":
		info.CalendarID = p.DelegatedEmail
		info.IsConfigured = true
	default:
		info.CalendarID = d.adminCalendarID
		info.IsConfigured = false
	}
	return info
}
