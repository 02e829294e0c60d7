// Package strategy generates the per-attempt acquisition configuration.
//
// Each attempt of the download pipeline should look like a different client
// to the upstream platform: different preferred container, different header
// set, different declared platform. The strategy list is data, not code, and
// can be replaced at runtime from a YAML file because the configurations that
// get past upstream bot detection change over time.
package strategy

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"
)

// FormatSelector is one alternative of a format preference.
type FormatSelector struct {
	// Container restricts the selection to a container ("m4a", "webm").
	// Empty accepts any container.
	Container string `yaml:"container"`
	// AudioOnly accepts only audio-only streams.
	AudioOnly bool `yaml:"audio_only"`
	// MaxHeight limits muxed video streams by height (0 = no limit).
	MaxHeight int `yaml:"max_height"`
	// Lowest picks the lowest bitrate instead of the highest.
	Lowest bool `yaml:"lowest"`
}

func (s FormatSelector) String() string {
	var name string
	switch {
	case s.AudioOnly && s.Lowest:
		name = "worstaudio"
	case s.AudioOnly:
		name = "bestaudio"
	case s.Lowest:
		name = "worst"
	default:
		name = "best"
	}
	if s.Container != "" {
		name += "[ext=" + s.Container + "]"
	}
	if s.MaxHeight > 0 {
		name += fmt.Sprintf("[height<=%d]", s.MaxHeight)
	}
	return name
}

// FormatPreference is an ordered fallback list, tried left to right.
type FormatPreference []FormatSelector

func (p FormatPreference) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

// Header fullness levels.
const (
	HeadersFull    = "full"
	HeadersReduced = "reduced"
	HeadersMinimal = "minimal"
)

// Strategy describes how one attempt presents itself upstream.
type Strategy struct {
	Name     string           `yaml:"name"`
	Formats  FormatPreference `yaml:"formats"`
	Platform string           `yaml:"platform"`
	Headers  string           `yaml:"headers"`
}

// ClientIdentity is a user agent string tagged with the platform it claims.
type ClientIdentity struct {
	Platform  string `yaml:"platform"`
	UserAgent string `yaml:"user_agent"`
}

// Config is a fully specified acquisition configuration for one attempt.
type Config struct {
	Attempt         int
	Strategy        string
	Formats         FormatPreference
	Platform        string
	Headers         http.Header
	SocketTimeout   time.Duration
	Retries         int
	FragmentRetries int
}

// Transport settings shared by every attempt.
const (
	DefaultSocketTimeout   = 30 * time.Second
	DefaultRetries         = 10
	DefaultFragmentRetries = 10
)

// Generator maps an attempt index to a Config.
type Generator struct {
	strategies []Strategy
	fallback   Strategy
	identities []ClientIdentity

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator builds a generator. The fallback strategy is always used for
// the last attempt of a sequence. A nil rnd seeds a fresh source.
func NewGenerator(policy *Policy, rnd *rand.Rand) (*Generator, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{
		strategies: policy.Strategies,
		fallback:   policy.Fallback,
		identities: policy.Identities,
		rnd:        rnd,
	}, nil
}

// For returns the configuration for attempt (0-based) out of total attempts.
func (g *Generator) For(attempt, total int) Config {
	s := g.pick(attempt, total)
	return Config{
		Attempt:         attempt,
		Strategy:        s.Name,
		Formats:         s.Formats,
		Platform:        s.Platform,
		Headers:         g.headers(s),
		SocketTimeout:   DefaultSocketTimeout,
		Retries:         DefaultRetries,
		FragmentRetries: DefaultFragmentRetries,
	}
}

func (g *Generator) pick(attempt, total int) Strategy {
	if attempt >= total-1 || len(g.strategies) == 0 {
		return g.fallback
	}
	return g.strategies[attempt%len(g.strategies)]
}

func (g *Generator) headers(s Strategy) http.Header {
	h := http.Header{}
	h.Set("User-Agent", g.userAgent(s.Platform))

	switch s.Headers {
	case HeadersFull:
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		h.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Upgrade-Insecure-Requests", "1")
		h.Set("DNT", "1")
	case HeadersReduced:
		h.Set("Accept", "*/*")
		h.Set("Accept-Language", "en-US,en;q=0.5")
	}
	return h
}

// userAgent picks pseudorandomly among identities claiming platform, or the
// whole pool when none match.
func (g *Generator) userAgent(platform string) string {
	var candidates []ClientIdentity
	for _, id := range g.identities {
		if platform == "" || id.Platform == platform {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		candidates = g.identities
	}

	g.mu.Lock()
	i := g.rnd.IntN(len(candidates))
	g.mu.Unlock()
	return candidates[i].UserAgent
}
