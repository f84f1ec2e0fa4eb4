// Package destination resolves the HEC endpoint URL a transfer posts to.
package destination

import (
	"strings"
)

// Param is one query-string parameter.
type Param struct {
	Name  string
	Value string
}

// Overrides carries the optional routing metadata and a fully resolved URL that,
// when set, replaces the URL assembled from scheme, host, port and path.
type Overrides struct {
	URL        string
	Source     string
	SourceType string
	Index      string
}

// Destination is the resolved endpoint of a run. It is a value type and is not
// modified after Resolve returns.
type Destination struct {
	Scheme   string
	Host     string
	Port     string
	Path     string
	Query    []Param
	Override string
}

// Resolve builds the destination for an HEC raw endpoint. A missing trailing ':'
// is added to protocol. Query parameters are source, sourcetype and index, in that
// order, each only when non-empty. Values are used verbatim and must already be
// safe to place in a URL.
func Resolve(protocol, host, port, endpointPath string, o Overrides) Destination {
	if !strings.HasSuffix(protocol, ":") {
		protocol += ":"
	}

	d := Destination{
		Scheme:   protocol,
		Host:     host,
		Port:     port,
		Path:     endpointPath,
		Override: o.URL,
	}
	d.Query = appendParam(d.Query, "source", o.Source)
	d.Query = appendParam(d.Query, "sourcetype", o.SourceType)
	d.Query = appendParam(d.Query, "index", o.Index)
	return d
}

func appendParam(q []Param, name, value string) []Param {
	if value == "" {
		return q
	}
	return append(q, Param{Name: name, Value: value})
}

// BaseURL returns the destination without its query string.
func (d Destination) BaseURL() string {
	if d.Override != "" {
		return d.Override
	}
	return d.Scheme + "//" + d.Host + ":" + d.Port + "/" + d.Path
}

// QueryString returns "?name=value&..." or "" when no parameter is set.
func (d Destination) QueryString() string {
	var sb strings.Builder
	for i, p := range d.Query {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(p.Name)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	return sb.String()
}

// URL returns the full URL requests are posted to.
func (d Destination) URL() string {
	return d.BaseURL() + d.QueryString()
}

// HealthURL derives the collector health endpoint from the base URL.
func (d Destination) HealthURL() string {
	base := d.BaseURL()

	for _, suffix := range []string{"/services/collector/raw", "/services/collector/event"} {
		if i := strings.Index(base, suffix); i >= 0 {
			return base[:i] + "/services/collector/health"
		}
	}
	if i := strings.Index(base, "/services/collector"); i >= 0 && !strings.Contains(base, "/services/collector/health") {
		return base[:i] + "/services/collector/health"
	}
	if strings.Contains(base, "/services/collector/health") {
		return base
	}

	base = strings.TrimSuffix(base, "/")
	if i := strings.Index(base, "/services"); i >= 0 {
		return base[:i] + "/services/collector/health"
	}
	return base + "/services/collector/health"
}
