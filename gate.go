package mcloones

import (
	"sync"

	"github.com/mcloones/mcloones/permission"
)

// Capability names a role-gated action or screen.
type Capability string

const (
	CapMenuView      Capability = "menu.view"
	CapEventsView    Capability = "events.view"
	CapGalleryView   Capability = "gallery.view"
	CapRewardsView   Capability = "rewards.view"
	CapTrainingView  Capability = "training.view"
	CapScheduleView  Capability = "schedule.view"
	CapBucksView     Capability = "bucks.view"
	CapEmployeesView Capability = "employees.view"
	CapBucksAward    Capability = "bucks.award"
	CapMenuManage    Capability = "menu.manage"
	CapEventsManage  Capability = "events.manage"
)

// allCapabilities fixes the bit order of the capability registry.
var allCapabilities = []Capability{
	CapMenuView,
	CapEventsView,
	CapGalleryView,
	CapRewardsView,
	CapTrainingView,
	CapScheduleView,
	CapBucksView,
	CapEmployeesView,
	CapBucksAward,
	CapMenuManage,
	CapEventsManage,
}

// capabilitiesFor is the static grant table. Every role must be listed.
func capabilitiesFor(r Role) []Capability {
	customer := []Capability{CapMenuView, CapEventsView, CapGalleryView, CapRewardsView}
	employee := append(append([]Capability{}, customer...), CapTrainingView, CapScheduleView, CapBucksView)

	switch r {
	case RoleCustomer:
		return customer
	case RoleEmployee:
		return employee
	case RoleManager:
		return append([]Capability{}, allCapabilities...)
	case RoleNone:
		return nil
	}
	return nil
}

// capabilityTable resolves capabilities to mask bits. It is built once per Manager
// and frozen.
type capabilityTable struct {
	registry *permission.Registry
	roles    *permission.RoleManager
}

func newCapabilityTable() (*capabilityTable, error) {
	registry := permission.NewRegistry()
	for _, c := range allCapabilities {
		if _, err := registry.Register(string(c)); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	roles := permission.NewRoleManager(registry)
	for _, r := range []Role{RoleCustomer, RoleEmployee, RoleManager} {
		caps := capabilitiesFor(r)
		names := make([]string, len(caps))
		for i, c := range caps {
			names[i] = string(c)
		}
		if err := roles.RegisterRole(r.String(), names); err != nil {
			return nil, err
		}
	}
	roles.Freeze()

	return &capabilityTable{registry: registry, roles: roles}, nil
}

func (t *capabilityTable) mask(r Role) permission.Mask64 {
	if t == nil || !r.Valid() {
		return 0
	}
	m, _ := t.roles.GetMask(r.String())
	return m
}

var defaultTable = sync.OnceValues(newCapabilityTable)

// ViewForRole returns the view of a signed-in actor holding r, as a Manager
// would derive it. Server code acting for a known role uses it.
func ViewForRole(r Role) AuthorizationView {
	table, err := defaultTable()
	if err != nil {
		panic("mcloones: capability table: " + err.Error())
	}
	s := Session{State: StateAuthenticated, Identity: &Identity{}}
	if r.Valid() {
		s.Profile = &Profile{Role: r}
	}
	return deriveView(&s, table)
}

// capabilityBits is shared by every view; bit order never changes after init.
var capabilityBits = func() map[Capability]int {
	out := make(map[Capability]int, len(allCapabilities))
	for i, c := range allCapabilities {
		out[c] = i
	}
	return out
}()

// AuthorizationView is the read-only answer to "what can the current actor do".
// It is a comparable value; two reads of an unchanged Session compare equal.
type AuthorizationView struct {
	IsAuthenticated bool
	Role            Role
	IsManager       bool
	Loading         bool

	mask permission.Mask64
}

// deriveView is the gate: a pure function of the Session snapshot.
func deriveView(s *Session, table *capabilityTable) AuthorizationView {
	if s == nil {
		return AuthorizationView{Loading: true}
	}

	v := AuthorizationView{
		IsAuthenticated: s.Identity != nil,
		Loading:         s.State == StateInitializing,
	}
	if v.IsAuthenticated && s.Profile != nil {
		v.Role = s.Profile.Role
	}
	v.IsManager = v.Role == RoleManager
	v.mask = table.mask(v.Role)
	return v
}

// Can reports whether the view grants c.
func (v AuthorizationView) Can(c Capability) bool {
	if !v.IsAuthenticated {
		return false
	}
	bit, ok := capabilityBits[c]
	if !ok {
		return false
	}
	return v.mask.Has(bit)
}

// Capabilities lists the granted capabilities in registry order.
func (v AuthorizationView) Capabilities() []Capability {
	out := make([]Capability, 0, len(allCapabilities))
	for _, c := range allCapabilities {
		if v.Can(c) {
			out = append(out, c)
		}
	}
	return out
}

// Route is a navigation destination chosen from the view.
type Route string

const (
	RouteSplash Route = "/splash"
	RouteLogin  Route = "/login"
	RouteNoRole Route = "/no-role"
	RouteHome   Route = "/(tabs)/(home)"
)

// Destination is where the app shell should be: splash while the initial check
// runs, the login screen when signed out, a fallback when the profile has not
// resolved, else home.
func (v AuthorizationView) Destination() Route {
	switch {
	case v.Loading:
		return RouteSplash
	case !v.IsAuthenticated:
		return RouteLogin
	case v.Role == RoleNone:
		return RouteNoRole
	default:
		return RouteHome
	}
}

// Tab is one entry of the bottom tab bar.
type Tab struct {
	Name  string
	Route string
	Label string
}

var (
	customerTabs = []Tab{
		{Name: "(home)", Route: "/(tabs)/(home)/", Label: "Menu"},
		{Name: "events", Route: "/(tabs)/events", Label: "Events"},
		{Name: "rewards", Route: "/(tabs)/rewards", Label: "Rewards"},
		{Name: "profile", Route: "/(tabs)/profile", Label: "About"},
	}
	employeeTabs = []Tab{
		{Name: "(home)", Route: "/(tabs)/(home)/", Label: "Dashboard"},
		{Name: "training", Route: "/(tabs)/training", Label: "Training"},
		{Name: "profile", Route: "/(tabs)/profile", Label: "Profile"},
	}
	managerTab = Tab{Name: "manager", Route: "/(tabs)/manager", Label: "Manager"}
)

// Tabs returns the tab set for the view's role. Unauthenticated or role-less views
// get no tabs.
func (v AuthorizationView) Tabs() []Tab {
	if !v.IsAuthenticated {
		return nil
	}
	switch v.Role {
	case RoleCustomer:
		return append([]Tab(nil), customerTabs...)
	case RoleEmployee:
		return append([]Tab(nil), employeeTabs...)
	case RoleManager:
		return append(append([]Tab(nil), employeeTabs...), managerTab)
	case RoleNone:
		return nil
	}
	return nil
}

// Viewer is anything that can produce the current [AuthorizationView]. *Manager
// implements it; screens and middleware depend on this instead of the Manager.
type Viewer interface {
	CurrentView() AuthorizationView
}
