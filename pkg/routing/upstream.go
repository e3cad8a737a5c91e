package routing

import (
	"fmt"
	"net"
	"strconv"
)

// ResolutionMode selects how upstream names become network addresses.
// One mode applies process-wide, fixed at startup.
type ResolutionMode string

const (
	// ModeDirect requires an explicit host:port per upstream; used for
	// local development against stub backends.
	ModeDirect ResolutionMode = "direct"
	// ModeService derives addresses from the in-cluster naming convention
	// <name>.<namespace>.svc.cluster.local.
	ModeService ResolutionMode = "service"
)

// Valid reports whether m is a recognized resolution mode.
func (m ResolutionMode) Valid() bool {
	return m == ModeDirect || m == ModeService
}

// UpstreamTarget is the resolved network destination for an upstream name.
// Resolved once per route at startup; DNS-level changes afterwards are the
// transport's concern.
type UpstreamTarget struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
}

// Addr returns the host:port form of the target.
func (t UpstreamTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// URL returns the scheme://host:port base URL of the target.
func (t UpstreamTarget) URL() string {
	return t.Scheme + "://" + t.Addr()
}

// Resolver turns upstream names into targets.
type Resolver struct {
	mode ResolutionMode
	// overrides holds explicit targets, required in direct mode and
	// honored as exceptions in service mode.
	overrides map[string]UpstreamTarget
	// serviceNamespace and servicePort parameterize the naming convention.
	serviceNamespace string
	servicePort      int
}

// NewResolver builds an upstream resolver for the given mode.
func NewResolver(mode ResolutionMode, overrides map[string]UpstreamTarget, serviceNamespace string, servicePort int) *Resolver {
	if overrides == nil {
		overrides = make(map[string]UpstreamTarget)
	}
	if servicePort == 0 {
		servicePort = 8080
	}
	return &Resolver{
		mode:             mode,
		overrides:        overrides,
		serviceNamespace: serviceNamespace,
		servicePort:      servicePort,
	}
}

// Resolve produces the target for an upstream name.
func (r *Resolver) Resolve(name string) (UpstreamTarget, error) {
	if target, ok := r.overrides[name]; ok {
		if target.Scheme == "" {
			target.Scheme = "http"
		}
		if target.Port == 0 {
			target.Port = r.servicePort
		}
		if target.Host == "" {
			return UpstreamTarget{}, fmt.Errorf("upstream %q: override is missing a host", name)
		}
		return target, nil
	}

	if r.mode == ModeDirect {
		return UpstreamTarget{}, fmt.Errorf("upstream %q: direct mode requires an explicit target", name)
	}

	return UpstreamTarget{
		Scheme: "http",
		Host:   fmt.Sprintf("%s.%s.svc.cluster.local", name, r.serviceNamespace),
		Port:   r.servicePort,
	}, nil
}
