// Copyright 2026 fanjia1024
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

package auth

import (
	"context"
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermissionJobManage, true},
		{RoleAdmin, PermissionFlagManage, true},
		{RoleRecruiter, PermissionJobManage, true},
		{RoleRecruiter, PermissionFlagManage, false},
		{RoleViewer, PermissionDashboardView, true},
		{RoleViewer, PermissionJobManage, false},
		// 未知与空角色按 recruiter 收窄
		{Role("unknown"), PermissionJobManage, true},
		{Role(""), PermissionFlagManage, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestCanManageJob(t *testing.T) {
	tests := []struct {
		name     string
		id       Identity
		postedBy string
		want     bool
	}{
		{"owner", Identity{Subject: "hr@acme.io", Role: RoleRecruiter}, "hr@acme.io", true},
		{"owner case-insensitive", Identity{Subject: "HR@Acme.IO", Role: RoleRecruiter}, "hr@acme.io", true},
		{"not owner", Identity{Subject: "other@acme.io", Role: RoleRecruiter}, "hr@acme.io", false},
		{"admin any job", Identity{Subject: "ops@acme.io", Role: RoleAdmin}, "hr@acme.io", true},
		{"viewer never manages", Identity{Subject: "hr@acme.io", Role: RoleViewer}, "hr@acme.io", false},
		{"empty subject", Identity{Role: RoleRecruiter}, "hr@acme.io", false},
		{"empty role falls back to recruiter", Identity{Subject: "hr@acme.io"}, "hr@acme.io", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanManageJob(tt.id, tt.postedBy); got != tt.want {
				t.Errorf("CanManageJob(%+v, %q) = %v, want %v", tt.id, tt.postedBy, got, tt.want)
			}
		})
	}
}

func TestCanViewJob(t *testing.T) {
	if !CanViewJob(Identity{Subject: "v@acme.io", Role: RoleViewer}, "v@acme.io") {
		t.Error("viewer should view own job dashboards")
	}
	if CanViewJob(Identity{Subject: "v@acme.io", Role: RoleViewer}, "hr@acme.io") {
		t.Error("viewer must not view another recruiter's job")
	}
	if !CanViewJob(Identity{Subject: "ops@acme.io", Role: RoleAdmin}, "hr@acme.io") {
		t.Error("admin views any job")
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := IdentityFrom(ctx); ok {
		t.Fatal("empty context should carry no identity")
	}
	want := Identity{Subject: "hr@acme.io", Role: RoleRecruiter}
	ctx = WithIdentity(ctx, want)
	got, ok := IdentityFrom(ctx)
	if !ok || got != want {
		t.Fatalf("IdentityFrom = %+v, %v; want %+v, true", got, ok, want)
	}
}
