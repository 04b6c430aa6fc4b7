package toolsurface

import "context"

// ownerDM reports whether the caller is authorized to manage the trust
// set: the configured owner, acting in a DM whose chat id equals their
// own user id (not relaying the grant through a group chat).
func ownerDM(x *ExecContext) bool {
	return x.Caller.UserID == x.OwnerID && x.Caller.ChatID == x.Caller.UserID
}

var addTrustedUserSpec = &Spec{
	Name:        "add_trusted_user",
	Description: "Grant a user owner-equivalent trust for DM tool use. Owner-only, DM-only.",
	Params: map[string]ParamSchema{
		"user_id":      {Type: "integer"},
		"display_name": {Type: "string"},
	},
	Required: []string{"user_id"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		if !ownerDM(x) {
			return Errf("add_trusted_user: only the owner, in a direct message, may grant trust")
		}
		userID := argInt64(args, "user_id")
		if err := x.Trust.AddTrustedUser(userID, argString(args, "display_name")); err != nil {
			return Errf("add_trusted_user: %v", err)
		}
		return Ok("")
	},
}

var removeTrustedUserSpec = &Spec{
	Name:        "remove_trusted_user",
	Description: "Revoke a previously granted trusted-DM user. Owner-only, DM-only.",
	Params:      map[string]ParamSchema{"user_id": {Type: "integer"}},
	Required:    []string{"user_id"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		if !ownerDM(x) {
			return Errf("remove_trusted_user: only the owner, in a direct message, may revoke trust")
		}
		userID := argInt64(args, "user_id")
		if err := x.Trust.RemoveTrustedUser(userID); err != nil {
			return Errf("remove_trusted_user: %v", err)
		}
		return Ok("")
	},
}
