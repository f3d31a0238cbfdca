package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambabib/dependency-inspector/pkg/registry"
)

const quickAuditResponse = `{
	"actions": [],
	"advisories": {
		"1096460": {"id": 1096460, "title": "Prototype Pollution", "severity": "high",
			"vulnerable_versions": "<4.17.21", "patched_versions": ">=4.17.21",
			"cves": ["CVE-2021-23337"], "github_advisory_id": "GHSA-35jh-r3h4-6jhm",
			"overview": "o", "recommendation": "Upgrade", "url": "https://github.com/advisories/GHSA-35jh-r3h4-6jhm"},
		"1094500": {"id": 1094500, "title": "ReDoS", "severity": "moderate",
			"vulnerable_versions": "<4.17.21", "cves": [], "url": "https://github.com/advisories/GHSA-29mw-wpgm-hmr9"},
		"1523": {"id": 1523, "title": "Command Injection", "severity": "high",
			"vulnerable_versions": "<4.17.19", "cves": ["CVE-2020-8203"], "url": "https://npmjs.com/advisories/1523"},
		"782": {"id": 782, "title": "Prototype Pollution", "severity": "high",
			"vulnerable_versions": "<4.17.11", "cves": null, "url": "https://npmjs.com/advisories/782"}
	},
	"muted": [],
	"metadata": {}
}`

func TestNpmFetcher_Fetch(t *testing.T) {
	var got npmAuditRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, quickAuditResponse)
	}))
	defer server.Close()

	f := NewNpmFetcher(server.URL, server.Client(), nil)
	advisories, err := f.Fetch(context.Background(), "lodash", "4.17.10")
	require.NoError(t, err)

	assert.Equal(t, "npm_audit_test", got.Name)
	assert.Equal(t, map[string]string{"lodash": "^4.17.10"}, got.Requires)
	assert.Equal(t, "4.17.10", got.Dependencies["lodash"].Version)

	require.Len(t, advisories, 4)
	ids := []string{}
	for _, a := range advisories {
		ids = append(ids, a.ID)
		assert.Equal(t, "npm", a.Source)
		assert.NotNil(t, a.CVEs)
	}
	assert.Equal(t, []string{"782", "1523", "1094500", "1096460"}, ids)

	last := advisories[3]
	assert.Equal(t, "Prototype Pollution", last.Title)
	assert.Equal(t, []string{"GHSA-35jh-r3h4-6jhm"}, last.Aliases)
	assert.Equal(t, []string{">=4.17.21"}, last.FixedIn)
	assert.Equal(t, "Upgrade", last.Recommendation)
}

func TestNpmFetcher_NoAdvisories(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"advisories": {}}`)
	}))
	defer server.Close()

	advisories, err := NewNpmFetcher(server.URL, server.Client(), nil).Fetch(context.Background(), "bar", "1.0.0")
	require.NoError(t, err)
	assert.Empty(t, advisories)
	assert.NotNil(t, advisories)
}

func TestNpmFetcher_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewNpmFetcher(server.URL, server.Client(), nil).Fetch(context.Background(), "bar", "1.0.0")
	assert.Error(t, err)
}

func TestOSVFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q osvQuery
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "golang.org/x/text", q.Package.Name)
		assert.Equal(t, "Go", q.Package.Ecosystem)
		assert.Equal(t, "v0.3.5", q.Version)
		fmt.Fprint(w, `{"vulns": [{
			"id": "GO-2021-0113",
			"aliases": ["CVE-2021-38561", "GHSA-ppp9-7jff-5vj2"],
			"summary": "Out-of-bounds read in golang.org/x/text/language",
			"details": "Parsing can panic.",
			"affected": [{
				"package": {"name": "golang.org/x/text", "ecosystem": "Go"},
				"ranges": [{"type": "SEMVER", "events": [{"introduced": "0"}, {"fixed": "0.3.7"}]}]
			}],
			"references": [{"type": "WEB", "url": "https://example.com"}],
			"database_specific": {"severity": "HIGH"}
		}]}`)
	}))
	defer server.Close()

	f := NewOSVFetcher(server.URL, "Go", server.Client(), nil)
	advisories, err := f.Fetch(context.Background(), "golang.org/x/text", "v0.3.5")
	require.NoError(t, err)
	require.Len(t, advisories, 1)

	a := advisories[0]
	assert.Equal(t, "GO-2021-0113", a.ID)
	assert.Equal(t, "high", a.Severity)
	assert.Equal(t, []string{"CVE-2021-38561"}, a.CVEs)
	assert.Equal(t, ">=0 <0.3.7", a.VulnerableVersions)
	assert.Equal(t, []string{"0.3.7"}, a.FixedIn)
	assert.Equal(t, "https://osv.dev/vulnerability/GO-2021-0113", a.URL)
	assert.Equal(t, "osv", a.Source)
}

func TestPyPIFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/requests/2.19.0/json", r.URL.Path)
		fmt.Fprint(w, `{
			"info": {"name": "requests", "version": "2.19.0"},
			"vulnerabilities": [
				{"id": "PYSEC-2018-28", "aliases": ["CVE-2018-18074"], "details": "leaks auth",
				 "fixed_in": ["2.20.0"], "link": "https://osv.dev/vulnerability/PYSEC-2018-28", "withdrawn": null},
				{"id": "GHSA-old", "aliases": [], "details": "gone", "withdrawn": "2023-01-01T00:00:00Z"}
			]
		}`)
	}))
	defer server.Close()

	f := NewPyPIFetcher(registry.NewPyPISource(server.URL, server.Client(), nil))
	advisories, err := f.Fetch(context.Background(), "requests", "2.19.0")
	require.NoError(t, err)
	require.Len(t, advisories, 1)
	assert.Equal(t, "PYSEC-2018-28", advisories[0].ID)
	assert.Equal(t, "PYSEC-2018-28", advisories[0].Title)
	assert.Equal(t, []string{"CVE-2018-18074"}, advisories[0].CVEs)
	assert.Equal(t, []string{"2.20.0"}, advisories[0].FixedIn)
}

func TestForEcosystem(t *testing.T) {
	assert.IsType(t, &NpmFetcher{}, ForEcosystem("npm", Options{}))
	assert.IsType(t, &PyPIFetcher{}, ForEcosystem("PyPI", Options{}))
	assert.IsType(t, &OSVFetcher{}, ForEcosystem("Go", Options{}))
	assert.IsType(t, &OSVFetcher{}, ForEcosystem("npm", Options{PreferOSV: true}))
}
