package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Amund211/warmstart/internal/adapters/cache"
	"github.com/Amund211/warmstart/internal/logging"
	"github.com/Amund211/warmstart/internal/ratelimiting"
)

const warmHostsEnv = "WARMSTART_WARM_HOSTS"

const hostCacheExpiration = 10 * time.Minute

type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

func hostKey(host string) string {
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

// NewHostCache memoizes host lookups, keeping addresses while they keep being asked for
func NewHostCache(resolver HostResolver, limiter ratelimiting.RateLimiter, opts ...cache.Option) (*cache.Cache[string, []string], error) {
	opts = append([]cache.Option{cache.WithName("hosts"), cache.WithExpiration(hostCacheExpiration)}, opts...)
	return cache.NewSlidingCache(hostKey, func(ctx context.Context, host string) ([]string, error) {
		if err := limiter.Wait(ctx, "lookup"); err != nil {
			return nil, err
		}

		addrs, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s: %w", host, err)
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("no addresses found for %s", host)
		}
		return addrs, nil
	}, opts...)
}

// HostCache is the process-wide host lookup cache backed by the system resolver
var HostCache = sync.OnceValue(func() *cache.Cache[string, []string] {
	// The limiter lives as long as the process, so its stop function is never needed
	limiter, _ := ratelimiting.NewTokenBucketRateLimiter(20, 10)
	hostCache, err := NewHostCache(net.DefaultResolver, limiter)
	if err != nil {
		panic(fmt.Sprintf("failed to create host cache: %s", err.Error()))
	}
	return hostCache
})

// ResolverWarmup resolves the hosts listed in WARMSTART_WARM_HOSTS so later lookups hit
// the host cache
type ResolverWarmup struct {
	hosts []string
	cache *cache.Cache[string, []string]
}

func NewResolverWarmup(hosts []string, hostCache *cache.Cache[string, []string]) *ResolverWarmup {
	return &ResolverWarmup{hosts: hosts, cache: hostCache}
}

func (w *ResolverWarmup) Init() error {
	w.hosts = parseHosts(os.Getenv(warmHostsEnv))
	w.cache = HostCache()
	return nil
}

func (w *ResolverWarmup) Execute(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	if len(w.hosts) == 0 {
		logger.InfoContext(ctx, "No hosts to warm up")
		return nil
	}

	var errs []error
	for _, host := range w.hosts {
		addrs, err := w.cache.GetOrAdd(ctx, host)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		logger.DebugContext(ctx, "Resolved host", "host", host, "addresses", addrs)
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to resolve %d of %d hosts: %w", len(errs), len(w.hosts), errors.Join(errs...))
	}

	logger.InfoContext(ctx, "Warmed up host cache", "hosts", len(w.hosts))
	return nil
}

func parseHosts(raw string) []string {
	hosts := []string{}
	for host := range strings.SplitSeq(raw, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts
}
