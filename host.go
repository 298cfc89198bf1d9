package surge

import (
	"fmt"
	"math/rand"
	"sync"
)

// publicDomain is the root domain fallback hosts live under (spec.md
// section 6, "Host layout").
const publicDomain = "surgemsg.io"

// defaultFallbackLabels is the fixed labeled fallback pool, generalized
// from amps/server_chooser.go's flat URI list into the spec's
// "A...E under a public domain" description.
var defaultFallbackLabels = []string{"a", "b", "c", "d", "e"}

// HostCursor selects the host to use for the next transport open
// (spec.md section 3, section 4.6). It is grounded on
// amps/server_chooser.go's DefaultServerChooser round-robin, generalized
// to a primary-host-plus-shuffled-fallback-pool model with the custom
// host / non-default environment override rule.
type HostCursor struct {
	mu sync.Mutex

	environment string
	customHost  string // set iff the caller configured an explicit host
	fallbackIdx int
	shuffled    []string
	retries     int // reconnect attempts from Disconnected/Suspended since the last successful connect
}

// NewHostCursor builds a HostCursor. customHost, if non-empty, disables
// fallback entirely per spec.md 4.6 ("Custom-host configurations never
// use fallbacks").
func NewHostCursor(environment, customHost string) *HostCursor {
	hc := &HostCursor{environment: environment, customHost: customHost}
	hc.reshuffle()
	return hc
}

func (hc *HostCursor) reshuffle() {
	labels := append([]string(nil), defaultFallbackLabels...)
	rand.Shuffle(len(labels), func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })
	hc.shuffled = labels
	hc.fallbackIdx = 0
}

// usesFallback reports whether fallback hosts are eligible at all: never
// for a custom host or a non-default (named) environment, per spec.md
// section 4.6 and testable property P7.
func (hc *HostCursor) usesFallback() bool {
	return hc.customHost == "" && hc.environment == ""
}

// primaryHost builds the primary host name per spec.md section 6:
// "{env}-realtime.{domain}" when env is set, else "realtime.{domain}".
func (hc *HostCursor) primaryHost() string {
	if hc.customHost != "" {
		return hc.customHost
	}
	if hc.environment != "" {
		return fmt.Sprintf("%s-realtime.%s", hc.environment, publicDomain)
	}
	return fmt.Sprintf("realtime.%s", publicDomain)
}

// NextHost implements the selection rule from spec.md 4.6: use primary
// unless both (a) the previous state was Disconnected or Suspended with
// at least one prior retry of that state already having occurred, and
// (b) no custom environment/host was configured. A reconnect attempt is
// counted by the NextHost call that makes it, so the first retry after
// entering Disconnected still targets the primary host and only the
// retry after that may fall back.
func (hc *HostCursor) NextHost(previousState ConnectionState) string {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	wasRetryable := previousState == StateDisconnected || previousState == StateSuspended
	if !wasRetryable {
		hc.retries = 0
		return hc.primaryHost()
	}

	priorRetried := hc.retries > 0
	hc.retries++
	if !priorRetried || !hc.usesFallback() {
		return hc.primaryHost()
	}

	if hc.fallbackIdx >= len(hc.shuffled) {
		hc.reshuffle()
	}
	label := hc.shuffled[hc.fallbackIdx]
	hc.fallbackIdx++
	return fmt.Sprintf("%s-fallback.%s", label, publicDomain)
}

// ReportConnected resets retry bookkeeping on a successful connection, so
// a later disconnect starts its own retry count from zero.
func (hc *HostCursor) ReportConnected() {
	hc.mu.Lock()
	hc.retries = 0
	hc.reshuffle()
	hc.mu.Unlock()
}
