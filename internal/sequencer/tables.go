package sequencer

import "pkt.systems/tclib/api"

// table maps a requested phase to the phases it may be entered from.
type table map[api.Phase][]api.Phase

var platformCommit = table{
	api.PhaseCommitTransStart:         {api.PhaseNone},
	api.PhaseCommitVote:               {api.PhaseCommitTransStart},
	api.PhaseCommitVoteDriverResult:   {api.PhaseCommitVote},
	api.PhaseCommitGlobal:             {api.PhaseCommitTransStart, api.PhaseCommitVote, api.PhaseCommitVoteDriverResult},
	api.PhaseCommitGlobalDriverResult: {api.PhaseCommitGlobal},
	api.PhaseCommitTransEnd: {
		api.PhaseCommitGlobalDriverResult,
		api.PhaseCommitTransStart,
		api.PhaseCommitVote,
		api.PhaseCommitGlobal,
		api.PhaseCommitGlobalAbort,
	},
	api.PhaseCommitGlobalAbort: {api.PhaseCommitVote, api.PhaseCommitVoteDriverResult},
}

var platformAudit = table{
	api.PhaseAuditStart:              {api.PhaseNone, api.PhaseAuditCancel},
	api.PhaseAuditTransStart:         {api.PhaseAuditStart},
	api.PhaseAuditVote:               {api.PhaseAuditTransStart},
	api.PhaseAuditVoteDriverResult:   {api.PhaseAuditVote},
	api.PhaseAuditGlobal:             {api.PhaseAuditVoteDriverResult},
	api.PhaseAuditGlobalDriverResult: {api.PhaseAuditGlobal},
	api.PhaseAuditTransEnd:           {api.PhaseAuditGlobalDriverResult, api.PhaseAuditGlobalAbort, api.PhaseAuditCancel},
	api.PhaseAuditEnd:                {api.PhaseAuditTransEnd, api.PhaseAuditGlobalDriverResult, api.PhaseAuditCancel},
	api.PhaseAuditCancel:             {api.PhaseAuditStart, api.PhaseAuditTransStart, api.PhaseAuditVote, api.PhaseAuditVoteDriverResult},
	api.PhaseAuditGlobalAbort:        {api.PhaseAuditVote, api.PhaseAuditVoteDriverResult, api.PhaseAuditCancel},
}

var driverCommit = table{
	api.PhaseCommitTransStart:   {api.PhaseNone},
	api.PhaseCommitDriverVote:   {api.PhaseCommitTransStart},
	api.PhaseCommitDriverGlobal: {api.PhaseCommitDriverVote},
	api.PhaseCommitGlobalAbort:  {api.PhaseCommitDriverVote},
	api.PhaseCommitTransEnd: {
		api.PhaseCommitDriverGlobal,
		api.PhaseCommitTransStart,
		api.PhaseCommitDriverVote,
		api.PhaseCommitGlobalAbort,
	},
}

var driverAudit = table{
	api.PhaseAuditStart:        {api.PhaseNone, api.PhaseAuditCancel},
	api.PhaseAuditTransStart:   {api.PhaseAuditStart},
	api.PhaseAuditDriverVote:   {api.PhaseAuditTransStart},
	api.PhaseAuditDriverGlobal: {api.PhaseAuditDriverVote},
	api.PhaseAuditGlobalAbort:  {api.PhaseAuditDriverVote, api.PhaseAuditCancel},
	api.PhaseAuditTransEnd: {
		api.PhaseAuditDriverGlobal,
		api.PhaseAuditTransStart,
		api.PhaseAuditDriverVote,
		api.PhaseAuditGlobalAbort,
		api.PhaseAuditCancel,
	},
	api.PhaseAuditEnd:    {api.PhaseAuditTransEnd, api.PhaseAuditCancel},
	api.PhaseAuditCancel: {api.PhaseAuditStart, api.PhaseAuditTransStart, api.PhaseAuditDriverVote},
}

// driverAuditGuarded lists the driver audit phases that are only legal while
// an audit targets this driver.
var driverAuditGuarded = map[api.Phase]bool{
	api.PhaseAuditStart:      true,
	api.PhaseAuditTransStart: true,
	api.PhaseAuditEnd:        true,
}

func tableFor(role api.Role, requested api.Phase) table {
	switch {
	case requested.IsCommit() && role == api.RoleDriver:
		return driverCommit
	case requested.IsCommit():
		return platformCommit
	case requested.IsAudit() && role == api.RoleDriver:
		return driverAudit
	case requested.IsAudit():
		return platformAudit
	}
	return nil
}

// Legal reports whether role may move from current to requested. inProgress
// is the driver's audit-in-progress flag and is ignored for platforms.
func Legal(role api.Role, current, requested api.Phase, inProgress bool) bool {
	if role == api.RoleDriver && requested.IsAudit() {
		if driverAuditGuarded[requested] && !inProgress {
			return false
		}
		if requested == api.PhaseAuditTransEnd && !inProgress {
			return true
		}
	}
	t := tableFor(role, requested)
	if t == nil {
		return false
	}
	for _, from := range t[requested] {
		if from == current {
			return true
		}
	}
	return false
}
