package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/aimux-org/aimux/pkg/observability"
	"github.com/aimux-org/aimux/pkg/version"
)

// ErrUnknownPlugin is returned by a Source when a plugin identity does not
// exist at all. The resolver turns it into a missing conflict instead of
// aborting the resolution.
var ErrUnknownPlugin = errors.New("unknown plugin")

// Strategy selects which eligible version wins.
type Strategy string

const (
	// StrategyLatest picks the highest eligible version.
	StrategyLatest Strategy = "latest"

	// StrategyMinimum picks the lowest eligible version.
	StrategyMinimum Strategy = "minimum"

	// StrategyStable picks the highest eligible stable version, falling
	// back to the highest eligible version when a plugin has never shipped
	// a stable release.
	StrategyStable Strategy = "stable"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLatest, StrategyMinimum, StrategyStable:
		return Strategy(s), nil
	case "":
		return StrategyStable, nil
	}
	return "", fmt.Errorf("unknown resolution strategy %q", s)
}

// Dependency is one dependency declared by a plugin version.
type Dependency struct {
	PluginID   string
	Constraint version.Constraint
	Optional   bool
}

// Source supplies release and dependency metadata to the resolver.
type Source interface {
	// Releases returns every published version of a plugin, prereleases
	// included. Order does not matter. ErrUnknownPlugin marks identities
	// that do not exist.
	Releases(ctx context.Context, pluginID string) ([]*semver.Version, error)

	// Dependencies returns the dependencies declared by one version of a
	// plugin.
	Dependencies(ctx context.Context, pluginID string, v *semver.Version) ([]Dependency, error)
}

// Request is one direct plugin request.
type Request struct {
	PluginID   string
	Constraint version.Constraint

	// Requester labels who asked, for conflict reporting. Defaults to
	// "root".
	Requester string
}

// Config configures a Resolver.
type Config struct {
	Strategy           Strategy
	IncludePrereleases bool

	// IncludeOptional pulls in dependencies plugins mark optional.
	IncludeOptional bool

	// MaxPasses bounds the re-selection fixpoint loop.
	MaxPasses int
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:  StrategyStable,
		MaxPasses: 10,
	}
}

// Resolver computes version assignments for plugin dependency closures.
type Resolver struct {
	source  Source
	config  Config
	log     *logrus.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	releases map[string][]*semver.Version

	resolutions  atomic.Int64
	conflictsHit atomic.Int64
	sourceCalls  atomic.Int64
	cacheHits    atomic.Int64
}

// New creates a resolver over the given source.
func New(source Source, config Config, log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.New()
	}
	if config.Strategy == "" {
		config.Strategy = StrategyStable
	}
	if config.MaxPasses <= 0 {
		config.MaxPasses = DefaultConfig().MaxPasses
	}
	return &Resolver{
		source:   source,
		config:   config,
		log:      log,
		releases: make(map[string][]*semver.Version),
	}
}

// SetMetrics attaches prometheus metrics. Optional.
func (r *Resolver) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// ClearCache drops cached release lists.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.releases = make(map[string][]*semver.Version)
	r.mu.Unlock()
}

// Statistics returns a snapshot of resolver counters.
func (r *Resolver) Statistics() map[string]int64 {
	r.mu.RLock()
	cached := int64(len(r.releases))
	r.mu.RUnlock()

	return map[string]int64{
		"resolutions":    r.resolutions.Load(),
		"conflicts":      r.conflictsHit.Load(),
		"source_calls":   r.sourceCalls.Load(),
		"cache_hits":     r.cacheHits.Load(),
		"cached_plugins": cached,
	}
}

// Resolve computes version assignments for the given direct requests.
//
// installed carries the currently installed versions. Installed plugins pin
// their exact version during resolution unless a direct request names the
// same plugin, which signals an explicit upgrade and drops the pin.
//
// Unsatisfiable constraints and dependency cycles are reported on the
// Result. An error return means the source failed or the context was
// cancelled.
func (r *Resolver) Resolve(ctx context.Context, requests []Request, installed map[string]string) (*Result, error) {
	if len(requests) == 0 {
		return &Result{}, nil
	}
	r.resolutions.Add(1)
	start := time.Now()

	s := &session{
		resolver: r,
		ctx:      ctx,
		chosen:   make(map[string]*semver.Version),
		deps:     make(map[string][]Dependency),
		direct:   make(map[string]bool),
		pins:     make(map[string]version.Constraint),
	}

	for _, req := range requests {
		if req.Requester == "" {
			req.Requester = "root"
		}
		s.requests = append(s.requests, req)
		s.direct[req.PluginID] = true
	}
	for id, ver := range installed {
		if s.direct[id] {
			continue
		}
		pin, err := version.ParseConstraint(ver)
		if err != nil {
			return nil, fmt.Errorf("installed version of %s is not a valid pin: %w", id, err)
		}
		s.pins[id] = pin
	}

	result, err := s.run()
	if err != nil {
		r.metrics.RecordResolution("error", time.Since(start))
		return nil, err
	}

	outcome := "ok"
	if !result.OK() {
		outcome = "conflict"
		r.conflictsHit.Add(1)
	}
	r.metrics.RecordResolution(outcome, time.Since(start))
	r.log.WithFields(logrus.Fields{
		"plugins":   len(result.Assignments),
		"conflicts": len(result.Conflicts),
		"passes":    result.Passes,
	}).Debug("Resolution finished")
	return result, nil
}

// session holds the mutable state of one Resolve call.
type session struct {
	resolver *Resolver
	ctx      context.Context

	requests []Request
	direct   map[string]bool
	pins     map[string]version.Constraint

	chosen map[string]*semver.Version
	deps   map[string][]Dependency // keyed id@version

	conflicts map[string]Conflict
}

type constraintEntry struct {
	requester  string
	constraint version.Constraint
}

func (s *session) run() (*Result, error) {
	result := &Result{}

	for pass := 1; pass <= s.resolver.config.MaxPasses; pass++ {
		result.Passes = pass
		changed, err := s.pass()
		if err != nil {
			return nil, err
		}
		if !changed {
			break
		}
	}

	s.prune()

	// Cycle check runs over the final choice set.
	g := newGraph()
	for id := range s.chosen {
		g.add(id)
		for _, d := range s.dependenciesOf(id) {
			if _, ok := s.chosen[d.PluginID]; ok {
				g.addEdge(id, d.PluginID)
			}
		}
	}
	inCycle := make(map[string]bool)
	for _, cycle := range g.cycles() {
		s.conflicts[cycle[0]] = Conflict{
			Type:     ConflictCircular,
			PluginID: cycle[0],
			Path:     cycle,
		}
		for _, id := range cycle {
			inCycle[id] = true
		}
	}

	cons := s.rebuildConstraints()
	for id, v := range s.chosen {
		// Cycle members get a conflict, never an assignment.
		if inCycle[id] {
			continue
		}
		requesters := make([]string, 0, len(cons[id]))
		for _, e := range cons[id] {
			requesters = append(requesters, e.requester)
		}
		result.Assignments = append(result.Assignments, Assignment{
			PluginID:   id,
			Version:    v,
			Requesters: dedupe(requesters),
			Direct:     s.direct[id],
		})
	}
	for _, c := range s.conflicts {
		result.Conflicts = append(result.Conflicts, c)
	}
	result.normalize()
	return result, nil
}

// pass recomputes constraints from the current choices, then selects a
// version for every plugin in the closure, expanding newly discovered
// dependencies in the same sweep. Reports whether any choice changed.
func (s *session) pass() (bool, error) {
	s.conflicts = make(map[string]Conflict)
	cons := s.rebuildConstraints()

	pending := make([]string, 0, len(cons))
	for id := range cons {
		pending = append(pending, id)
	}
	sort.Strings(pending)
	seen := make(map[string]bool, len(pending))
	for _, id := range pending {
		seen[id] = true
	}

	changed := false
	for len(pending) > 0 {
		id := pending[0]
		pending = pending[1:]

		if err := s.ctx.Err(); err != nil {
			return false, err
		}

		pick, conflict, err := s.selectVersion(id, cons[id])
		if err != nil {
			return false, err
		}
		if conflict != nil {
			s.conflicts[id] = *conflict
			if s.chosen[id] != nil {
				delete(s.chosen, id)
				changed = true
			}
			continue
		}

		prev := s.chosen[id]
		if prev != nil && prev.Equal(pick) {
			continue
		}
		s.chosen[id] = pick
		changed = true

		deps, err := s.dependencies(id, pick)
		if err != nil {
			return false, err
		}
		for _, d := range deps {
			if d.Optional && !s.resolver.config.IncludeOptional {
				continue
			}
			cons[d.PluginID] = append(cons[d.PluginID], constraintEntry{requester: id, constraint: d.Constraint})
			if pin, ok := s.pins[d.PluginID]; ok && !s.hasPin(cons[d.PluginID]) {
				cons[d.PluginID] = append(cons[d.PluginID], constraintEntry{requester: "installed", constraint: pin})
			}
			if !seen[d.PluginID] {
				seen[d.PluginID] = true
				i := sort.SearchStrings(pending, d.PluginID)
				pending = append(pending, "")
				copy(pending[i+1:], pending[i:])
				pending[i] = d.PluginID
			}
		}
	}

	if s.prune() {
		changed = true
	}
	return changed, nil
}

// rebuildConstraints derives the full constraint map from the direct
// requests, installed pins, and the dependencies of currently chosen
// versions. Stale constraints from superseded choices never survive a
// rebuild.
func (s *session) rebuildConstraints() map[string][]constraintEntry {
	cons := make(map[string][]constraintEntry)
	for _, req := range s.requests {
		cons[req.PluginID] = append(cons[req.PluginID], constraintEntry{requester: req.Requester, constraint: req.Constraint})
	}
	for id := range s.chosen {
		for _, d := range s.dependenciesOf(id) {
			cons[d.PluginID] = append(cons[d.PluginID], constraintEntry{requester: id, constraint: d.Constraint})
		}
	}
	for id, pin := range s.pins {
		if _, requested := cons[id]; requested {
			cons[id] = append(cons[id], constraintEntry{requester: "installed", constraint: pin})
		}
	}
	return cons
}

func (s *session) hasPin(entries []constraintEntry) bool {
	for _, e := range entries {
		if e.requester == "installed" {
			return true
		}
	}
	return false
}

// prune drops chosen plugins no longer reachable from a direct request.
// Reports whether anything was dropped.
func (s *session) prune() bool {
	reachable := make(map[string]bool)
	stack := make([]string, 0, len(s.direct))
	for id := range s.direct {
		if _, ok := s.chosen[id]; ok {
			reachable[id] = true
			stack = append(stack, id)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range s.dependenciesOf(id) {
			if reachable[d.PluginID] {
				continue
			}
			if _, ok := s.chosen[d.PluginID]; !ok {
				continue
			}
			reachable[d.PluginID] = true
			stack = append(stack, d.PluginID)
		}
	}

	dropped := false
	for id := range s.chosen {
		if !reachable[id] {
			delete(s.chosen, id)
			dropped = true
		}
	}
	return dropped
}

// selectVersion picks a version for one plugin under the given constraint
// entries, or reports the conflict that prevents it.
func (s *session) selectVersion(id string, entries []constraintEntry) (*semver.Version, *Conflict, error) {
	all, err := s.releases(id)
	if err != nil {
		if errors.Is(err, ErrUnknownPlugin) {
			return nil, &Conflict{Type: ConflictMissing, PluginID: id}, nil
		}
		return nil, nil, fmt.Errorf("failed to list releases of %s: %w", id, err)
	}
	if len(all) == 0 {
		return nil, &Conflict{Type: ConflictMissing, PluginID: id}, nil
	}

	cfg := s.resolver.config
	includePre := cfg.IncludePrereleases

	candidates := all
	if !includePre {
		candidates = stableOnly(all)
		if len(candidates) == 0 && cfg.Strategy == StrategyStable {
			// Never shipped a stable release; fall back to the full set.
			candidates = all
			includePre = true
		}
	}
	if len(candidates) == 0 {
		return nil, &Conflict{Type: ConflictMissing, PluginID: id}, nil
	}

	constraints := make([]version.Constraint, len(entries))
	wantMinimum := cfg.Strategy == StrategyMinimum
	for i, e := range entries {
		constraints[i] = e.constraint
		if e.constraint.IsMinimum() {
			wantMinimum = true
		}
	}

	eligible := version.Intersect(candidates, constraints, includePre)
	if len(eligible) == 0 && !includePre && cfg.Strategy == StrategyStable {
		eligible = version.Intersect(all, constraints, true)
	}
	if len(eligible) == 0 {
		c := &Conflict{Type: ConflictVersion, PluginID: id}
		for _, e := range entries {
			c.Requesters = append(c.Requesters, e.requester)
			c.Constraints = append(c.Constraints, e.constraint.String())
		}
		return nil, c, nil
	}

	version.Sort(eligible)
	if wantMinimum {
		return eligible[0], nil, nil
	}
	if cfg.Strategy == StrategyStable {
		for i := len(eligible) - 1; i >= 0; i-- {
			if eligible[i].Prerelease() == "" {
				return eligible[i], nil, nil
			}
		}
	}
	return eligible[len(eligible)-1], nil, nil
}

// releases returns the release set for a plugin, serving repeat queries
// from the resolver-level cache.
func (s *session) releases(id string) ([]*semver.Version, error) {
	r := s.resolver

	r.mu.RLock()
	cached, ok := r.releases[id]
	r.mu.RUnlock()
	if ok {
		r.cacheHits.Add(1)
		return cached, nil
	}

	r.sourceCalls.Add(1)
	versions, err := r.source.Releases(s.ctx, id)
	if err != nil {
		return nil, err
	}
	version.Sort(versions)

	r.mu.Lock()
	r.releases[id] = versions
	r.mu.Unlock()
	return versions, nil
}

// dependencies returns the dependencies of one plugin version, memoized
// for the session.
func (s *session) dependencies(id string, v *semver.Version) ([]Dependency, error) {
	key := id + "@" + v.String()
	if deps, ok := s.deps[key]; ok {
		return deps, nil
	}
	s.resolver.sourceCalls.Add(1)
	deps, err := s.resolver.source.Dependencies(s.ctx, id, v)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependencies of %s@%s: %w", id, v, err)
	}
	s.deps[key] = deps
	return deps, nil
}

// dependenciesOf returns the memoized dependencies of a plugin's current
// choice, filtered by the optional-dependency setting. Only valid for
// plugins that have a chosen version whose deps were already fetched.
func (s *session) dependenciesOf(id string) []Dependency {
	v, ok := s.chosen[id]
	if !ok {
		return nil
	}
	deps := s.deps[id+"@"+v.String()]
	if s.resolver.config.IncludeOptional {
		return deps
	}
	out := deps[:0:0]
	for _, d := range deps {
		if !d.Optional {
			out = append(out, d)
		}
	}
	return out
}

func stableOnly(versions []*semver.Version) []*semver.Version {
	out := make([]*semver.Version, 0, len(versions))
	for _, v := range versions {
		if v.Prerelease() == "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(ss []string) []string {
	sort.Strings(ss)
	out := ss[:0]
	for i, s := range ss {
		if i == 0 || s != ss[i-1] {
			out = append(out, s)
		}
	}
	return out
}
