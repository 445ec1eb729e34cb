package rewrite

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"open-blog/internal/database"
	"open-blog/internal/routing"
)

var (
	ErrRouteNotFound   = errors.New("route not found")
	ErrPathExists      = errors.New("path already exists")
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrEndpointBusy    = errors.New("endpoint already has an active override")
	ErrInvalidPath     = errors.New("invalid path")
	ErrRefreshFailed   = errors.New("route saved but the route table refresh failed")
)

// Store is the persistence the admin service needs.
type Store interface {
	RouteSource
	CreateRoute(rt *database.Route) error
	FindRoute(id uint) (*database.Route, error)
	FindRouteByPath(path string) (*database.Route, error)
	FindRoutes() ([]database.Route, error)
	FindActiveRouteForEndpoint(endpoint string, exclude uint) (*database.Route, error)
	SaveRoute(rt *database.Route) error
	DeleteRoute(id uint) error
}

// Service implements the administrative route operations. Every mutation
// is validated, persisted and followed by a table refresh.
type Service struct {
	store  Store
	table  *routing.Table
	engine *Engine
	log    *logrus.Entry
}

// NewService creates a Service.
func NewService(store Store, table *routing.Table, engine *Engine, log *logrus.Entry) *Service {
	return &Service{store: store, table: table, engine: engine, log: log}
}

// RouteUpdate holds the fields to change; nil fields are left alone.
type RouteUpdate struct {
	Path             *string
	OriginalEndpoint *string
	Description      *string
	IsActive         *bool
}

// EndpointInfo describes a built-in endpoint an override can target.
type EndpointInfo struct {
	Endpoint     string   `json:"endpoint"`
	Pattern      string   `json:"pattern"`
	Methods      []string `json:"methods"`
	OverridePath string   `json:"override_path,omitempty"`
}

// ListRoutes returns every Route record.
func (s *Service) ListRoutes() ([]database.Route, error) {
	return s.store.FindRoutes()
}

// Endpoints lists the built-in endpoints with their current override.
func (s *Service) Endpoints() []EndpointInfo {
	var out []EndpointInfo
	for _, r := range s.table.Rules() {
		if r.Kind != routing.KindBuiltin || r.Pinned {
			continue
		}
		info := EndpointInfo{Endpoint: r.Endpoint, Pattern: r.Pattern, Methods: r.Methods}
		info.OverridePath, _ = s.engine.OverridePath(r.Endpoint)
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b EndpointInfo) int { return strings.Compare(a.Endpoint, b.Endpoint) })
	return out
}

// AddRoute creates an override of endpoint at path.
func (s *Service) AddRoute(path, endpoint, description string, active bool) (*database.Route, error) {
	path = strings.TrimSpace(path)
	if err := s.validate(path, endpoint, active, 0); err != nil {
		return nil, err
	}

	rt := &database.Route{
		Path:             path,
		OriginalEndpoint: endpoint,
		Description:      description,
		IsActive:         active,
	}
	if err := s.store.CreateRoute(rt); err != nil {
		return nil, fmt.Errorf("create route: %w", err)
	}
	s.log.WithFields(logrus.Fields{"route_id": rt.ID, "path": path, "endpoint": endpoint}).Info("route added")
	return rt, s.refresh()
}

// UpdateRoute changes the given fields of a route.
func (s *Service) UpdateRoute(id uint, upd RouteUpdate) (*database.Route, error) {
	rt, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if upd.Path != nil {
		rt.Path = strings.TrimSpace(*upd.Path)
	}
	if upd.OriginalEndpoint != nil {
		rt.OriginalEndpoint = *upd.OriginalEndpoint
	}
	if upd.Description != nil {
		rt.Description = *upd.Description
	}
	if upd.IsActive != nil {
		rt.IsActive = *upd.IsActive
	}

	if err := s.validate(rt.Path, rt.OriginalEndpoint, rt.IsActive, rt.ID); err != nil {
		return nil, err
	}
	if err := s.store.SaveRoute(rt); err != nil {
		return nil, fmt.Errorf("save route: %w", err)
	}
	s.log.WithField("route_id", rt.ID).Info("route updated")
	return rt, s.refresh()
}

// DeleteRoute removes a route.
func (s *Service) DeleteRoute(id uint) error {
	if _, err := s.find(id); err != nil {
		return err
	}
	if err := s.store.DeleteRoute(id); err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	s.log.WithField("route_id", id).Info("route deleted")
	return s.refresh()
}

// ToggleRoute flips a route's active flag.
func (s *Service) ToggleRoute(id uint) (*database.Route, error) {
	rt, err := s.find(id)
	if err != nil {
		return nil, err
	}
	active := !rt.IsActive
	return s.UpdateRoute(id, RouteUpdate{IsActive: &active})
}

// Refresh forces a reconciliation, bypassing the debounce window.
func (s *Service) Refresh() error {
	if !s.engine.Force() {
		return ErrRefreshFailed
	}
	return nil
}

func (s *Service) refresh() error {
	if !s.engine.Refresh() {
		return ErrRefreshFailed
	}
	return nil
}

func (s *Service) find(id uint) (*database.Route, error) {
	rt, err := s.store.FindRoute(id)
	if err != nil {
		return nil, fmt.Errorf("find route: %w", err)
	}
	if rt == nil {
		return nil, ErrRouteNotFound
	}
	return rt, nil
}

// validate checks a route about to be stored. exclude is the id of the
// route being edited, 0 for a new one.
func (s *Service) validate(path, endpoint string, active bool, exclude uint) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q must start with /", ErrInvalidPath, path)
	}
	if err := routing.ValidateTemplate(path); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	orig, ok := s.table.FindByEndpoint(endpoint)
	if !ok || orig.Kind != routing.KindBuiltin {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	if orig.Pinned {
		return fmt.Errorf("%w: %s cannot be overridden", ErrUnknownEndpoint, endpoint)
	}

	existing, err := s.store.FindRouteByPath(path)
	if err != nil {
		return fmt.Errorf("find route: %w", err)
	}
	if existing != nil && existing.ID != exclude {
		return fmt.Errorf("%w: %s", ErrPathExists, path)
	}
	clash, err := s.table.Conflicts(path, orig.Methods, routing.KindOverride)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if clash {
		return fmt.Errorf("%w: %s is served by another endpoint", ErrPathExists, path)
	}
	vars, err := routing.TemplateVariables(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !routing.SameVariables(vars, orig.Variables()) {
		return fmt.Errorf("%w: %s must use the variables %v of %s", ErrInvalidPath, path, orig.Variables(), orig.Pattern)
	}

	if active {
		other, err := s.store.FindActiveRouteForEndpoint(endpoint, exclude)
		if err != nil {
			return fmt.Errorf("find route: %w", err)
		}
		if other != nil {
			return fmt.Errorf("%w: %s (route %d)", ErrEndpointBusy, endpoint, other.ID)
		}
	}
	return nil
}
