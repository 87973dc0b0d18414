package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/projects", "/projects"},
		{"/health", "/health"},
		{"/ready", "/ready"},
		{"/metrics", "/metrics"},

		{"/projects/123", "/projects/{id}"},
		{"/projects/123/image", "/projects/{id}/image"},
		{"/projects/456/image_url", "/projects/{id}/image_url"},
		{"/projects/789/base_scenario", "/projects/{id}/base_scenario"},

		{"/scenarios/42", "/scenarios/{id}"},
		{"/scenarios/42/physical_objects", "/scenarios/{id}/physical_objects"},
		{"/scenarios/42/services", "/scenarios/{id}/services"},
		{"/scenarios/42/geometries", "/scenarios/{id}/geometries"},
		{"/scenarios/42/geometries_with_all_objects", "/scenarios/{id}/geometries_with_all_objects"},
		{"/scenarios/42/functional_zones", "/scenarios/{id}/functional_zones"},
		{"/scenarios/42/context/geometries", "/scenarios/{id}/context/geometries"},
		{"/scenarios/42/context/services", "/scenarios/{id}/context/services"},
		{"/scenarios/42/physical_objects/17", "/scenarios/{id}/physical_objects/{entity_id}"},
		{"/scenarios/42/services/17", "/scenarios/{id}/services/{entity_id}"},
		{"/scenarios/42/geometries/17", "/scenarios/{id}/geometries/{entity_id}"},

		{"/projects/", "/projects/"},
		{"/unknown/path", "/unknown/path"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.path); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestNormalizePathCollapsesIDs(t *testing.T) {
	seen := make(map[string]bool)
	for _, path := range []string{"/projects/1", "/projects/2", "/projects/999", "/projects/123456789"} {
		seen[normalizePath(path)] = true
	}
	if len(seen) != 1 || !seen["/projects/{id}"] {
		t.Errorf("project ids should collapse to one label, got %v", seen)
	}
}
