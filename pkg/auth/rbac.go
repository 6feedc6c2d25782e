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

// Package auth 招聘方会话的授权判定。会话由外部身份服务签发，
// 这里只消费验签后的主体：职位归属按 posted_by 与会话主体比对，
// admin 跨职位放行。
package auth

import "strings"

// Permission 权限
type Permission string

const (
	PermissionJobManage     Permission = "job:manage"     // 建改删职位、关闭投递
	PermissionInterviewOps  Permission = "interview:ops"  // 邀约、取消、记到场
	PermissionDashboardView Permission = "dashboard:view" // 候选人、日志、统计看板
	PermissionFlagManage    Permission = "flag:manage"    // 特性开关管理
)

// Role 角色
type Role string

const (
	RoleAdmin     Role = "admin"     // 全部权限，跨职位
	RoleRecruiter Role = "recruiter" // 自己职位的全部操作
	RoleViewer    Role = "viewer"    // 只读看板
)

// RolePermissions 角色与权限映射
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionJobManage,
		PermissionInterviewOps,
		PermissionDashboardView,
		PermissionFlagManage,
	},
	RoleRecruiter: {
		PermissionJobManage,
		PermissionInterviewOps,
		PermissionDashboardView,
	},
	RoleViewer: {
		PermissionDashboardView,
	},
}

// normalize 空或未知角色按 recruiter 处理（外部身份服务只发邮箱时的缺省）
func (r Role) normalize() Role {
	switch r {
	case RoleAdmin, RoleRecruiter, RoleViewer:
		return r
	default:
		return RoleRecruiter
	}
}

// HasPermission 角色是否具备权限
func HasPermission(role Role, p Permission) bool {
	for _, have := range RolePermissions[role.normalize()] {
		if have == p {
			return true
		}
	}
	return false
}

// CanManageJob 职位归属判定：admin 跨职位放行，
// 其余角色要求会话主体与职位 posted_by 一致（邮箱大小写不敏感）。
func CanManageJob(id Identity, postedBy string) bool {
	if id.Role.normalize() == RoleAdmin {
		return true
	}
	if !HasPermission(id.Role, PermissionJobManage) {
		return false
	}
	return id.Subject != "" && strings.EqualFold(id.Subject, postedBy)
}

// CanViewJob 看板访问判定：admin 跨职位，viewer/recruiter 仅自己的职位
func CanViewJob(id Identity, postedBy string) bool {
	if id.Role.normalize() == RoleAdmin {
		return true
	}
	if !HasPermission(id.Role, PermissionDashboardView) {
		return false
	}
	return id.Subject != "" && strings.EqualFold(id.Subject, postedBy)
}
