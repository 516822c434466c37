// Package tenant 定义请求方身份. 租户范围只来自认证后的 Principal，从不读取请求体中的租户字段.
package tenant

import (
	"context"
	"strings"
)

// Role 请求方角色，数值越大权限越高.
type Role int

const (
	RoleAnonymous Role = iota
	RoleMember
	RoleStaff
	RoleAdmin
)

// String 返回角色名称.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleStaff:
		return "staff"
	case RoleMember:
		return "member"
	case RoleAnonymous:
		fallthrough
	default:
		return "anonymous"
	}
}

// ParseRole 解析角色，未知值降级为 member.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin
	case "staff":
		return RoleStaff
	case "anonymous", "public":
		return RoleAnonymous
	default:
		return RoleMember
	}
}

// Principal 已认证的调用方.
type Principal struct {
	UserID         string
	OrganizationID string
	Role           Role
}

// Anonymous 公开提交使用的匿名调用方.
var Anonymous = Principal{Role: RoleAnonymous}

// IsAnonymous 是否为匿名调用方.
func (p Principal) IsAnonymous() bool {
	return p.OrganizationID == "" || p.Role == RoleAnonymous
}

// Owns 调用方是否属于给定租户.
func (p Principal) Owns(organizationID string) bool {
	return !p.IsAnonymous() && p.OrganizationID == organizationID
}

// System 后台任务使用的系统身份，作用于指定租户.
func System(organizationID string) Principal {
	return Principal{UserID: "system", OrganizationID: organizationID, Role: RoleAdmin}
}

type principalKey struct{}

// WithPrincipal 将 Principal 存入 context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext 读取 Principal，不存在时返回 Anonymous.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return Anonymous, false
	}

	return p, true
}
