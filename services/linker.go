package services

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"pfsync/cache"
	"pfsync/models"
)

const defaultLinkConcurrency = 10

// AgentStore is the slice of the document store the linker needs.
type AgentStore interface {
	FindAgentByEmail(ctx context.Context, email string) (*models.AgentRef, error)
	UpsertAgentListing(ctx context.Context, agentID primitive.ObjectID, summary models.AgentListingSummary) (updated bool, err error)
}

// AgentLinker denormalizes live listings into their owning agents'
// embedded listing arrays. Each link is one resolve plus one targeted
// write, run by a bounded pool so a large feed overlaps DB latency
// without flooding the store.
type AgentLinker struct {
	store       AgentStore
	cache       cache.Cache
	concurrency int
	cacheTTL    time.Duration
}

func NewAgentLinker(store AgentStore, c cache.Cache, concurrency int, cacheTTL time.Duration) *AgentLinker {
	if concurrency <= 0 {
		concurrency = defaultLinkConcurrency
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &AgentLinker{store: store, cache: c, concurrency: concurrency, cacheTTL: cacheTTL}
}

// LinkStats aggregates link outcomes across one run.
type LinkStats struct {
	Added    int `json:"added"`
	Updated  int `json:"updated"`
	NotFound int `json:"notFound"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// MissingAgent reports one roster gap: an agent email the feed references
// that no stored agent carries. Expected drift, not an error.
type MissingAgent struct {
	Email         string            `json:"email"`
	AgentName     string            `json:"agentName"`
	Phone         string            `json:"phone"`
	PropertyCount int               `json:"propertyCount"`
	Properties    []MissingProperty `json:"properties"`
}

type MissingProperty struct {
	PropertyID string `json:"propertyId"`
	Status     string `json:"status"`
}

type linkOutcome int

const (
	linkAdded linkOutcome = iota
	linkUpdated
	linkNotFound
	linkSkipped
	linkFailed
)

// LinkAll links every live listing in the batch. Non-live listings are
// never linked, even if an agent already carries them from an earlier
// run. Outcomes are aggregated; individual failures never abort the run.
func (l *AgentLinker) LinkAll(ctx context.Context, listings []*models.Listing) (LinkStats, []MissingAgent) {
	var (
		mu      sync.Mutex
		stats   LinkStats
		missing = make(map[string]*MissingAgent)
	)

	sem := make(chan struct{}, l.concurrency)
	var wg sync.WaitGroup

	for _, listing := range listings {
		if !listing.IsLive() {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(listing *models.Listing) {
			defer wg.Done()
			defer func() { <-sem }()

			email := normalizeEmail(listing.Agent.Email)
			outcome, err := l.linkOne(ctx, listing, email)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case linkAdded:
				stats.Added++
			case linkUpdated:
				stats.Updated++
			case linkSkipped:
				stats.Skipped++
			case linkNotFound:
				stats.NotFound++
				recordMissingAgent(missing, email, listing)
			case linkFailed:
				stats.Failed++
				log.Printf("Warning: link listing %s to agent %s: %v", listing.ID, email, err)
			}
		}(listing)
	}
	wg.Wait()

	return stats, sortedMissingAgents(missing)
}

func (l *AgentLinker) linkOne(ctx context.Context, listing *models.Listing, email string) (linkOutcome, error) {
	if email == "" {
		return linkSkipped, nil
	}

	agentID, ok := l.cachedAgentID(ctx, email)
	if !ok {
		ref, err := l.store.FindAgentByEmail(ctx, email)
		if err != nil {
			return linkFailed, err
		}
		if ref == nil {
			return linkNotFound, nil
		}
		agentID = ref.ID
		if l.cache != nil {
			l.cache.Set(ctx, agentCacheKey(email), ref.ID.Hex(), l.cacheTTL)
		}
	}

	updated, err := l.store.UpsertAgentListing(ctx, agentID, models.NewAgentListingSummary(listing))
	if err != nil {
		return linkFailed, err
	}
	if updated {
		return linkUpdated, nil
	}
	return linkAdded, nil
}

func (l *AgentLinker) cachedAgentID(ctx context.Context, email string) (primitive.ObjectID, bool) {
	if l.cache == nil {
		return primitive.NilObjectID, false
	}
	hex, ok := l.cache.Get(ctx, agentCacheKey(email))
	if !ok {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

func agentCacheKey(email string) string {
	return "agent:" + email
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func recordMissingAgent(missing map[string]*MissingAgent, email string, listing *models.Listing) {
	entry, ok := missing[email]
	if !ok {
		name := strings.TrimSpace(listing.Agent.FirstName + " " + listing.Agent.LastName)
		phone := listing.Agent.MobilePhone
		if phone == "" {
			phone = listing.Agent.Phone
		}
		if phone == "" {
			phone = "N/A"
		}
		entry = &MissingAgent{Email: email, AgentName: name, Phone: phone}
		missing[email] = entry
	}
	entry.PropertyCount++
	entry.Properties = append(entry.Properties, MissingProperty{
		PropertyID: listing.ID,
		Status:     listing.General.Status,
	})
}

func sortedMissingAgents(missing map[string]*MissingAgent) []MissingAgent {
	out := make([]MissingAgent, 0, len(missing))
	for _, entry := range missing {
		sort.Slice(entry.Properties, func(i, j int) bool {
			return entry.Properties[i].PropertyID < entry.Properties[j].PropertyID
		})
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}
