package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides who may run privileged commands such as
// reloading game systems.
type PermissionChecker struct {
	gmRoleID string
}

// NewPermissionChecker creates a PermissionChecker for the given GM role ID.
func NewPermissionChecker(gmRoleID string) *PermissionChecker {
	return &PermissionChecker{gmRoleID: gmRoleID}
}

// IsGM reports whether the interaction author may run GM commands: members
// with the configured GM role, or with Manage Server when no role is
// configured. Interactions outside a guild never qualify.
func (p *PermissionChecker) IsGM(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	if p.gmRoleID == "" {
		return i.Member.Permissions&discordgo.PermissionManageGuild != 0
	}
	return slices.Contains(i.Member.Roles, p.gmRoleID)
}
