// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Cool App", "my-cool-app"},
		{"already-fine", "already-fine"},
		{"Under_Score", "under_score"},
		{"weird!@#chars", "weirdchars"},
		{"Tabs\tand spaces", "tabsand-spaces"},
		{"", ""},
		{"UPPER", "upper"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUserPermissions(t *testing.T) {
	s := Server{
		Permissions: PermissionsMap{"alice": PermissionWrite},
	}
	if got := s.UserPermissions("alice"); got != PermissionWrite {
		t.Errorf("UserPermissions(alice) = %v, want write", got)
	}
	if got := s.UserPermissions("bob"); got != PermissionNone {
		t.Errorf("UserPermissions(bob) = %v, want none", got)
	}
}

func TestPermissionLevelOrdering(t *testing.T) {
	if !(PermissionNone < PermissionRead && PermissionRead < PermissionExecute && PermissionExecute < PermissionWrite) {
		t.Error("permission levels are not totally ordered none < read < execute < write")
	}
}

func TestAllLogsSuccess(t *testing.T) {
	if !AllLogsSuccess(nil) {
		t.Error("empty log list should count as success")
	}
	if !AllLogsSuccess([]Log{{Success: true}, {Success: true}}) {
		t.Error("all-success logs should report success")
	}
	if AllLogsSuccess([]Log{{Success: true}, {Success: false}}) {
		t.Error("one failed log should fail the set")
	}
}
