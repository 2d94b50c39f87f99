// Package portal implements the access and workflow core of a small team
// portal: invite-gated onboarding, role based route guarding, owner review
// of submitted records, and per-user unread watermarks.
//
// Identity:
//   - Sessions come from an IdentityProvider (local credentials) or a hosted
//     identity service whose tokens are validated through a TokenValidator.
//     The Resolver joins the session subject with the stored profile and
//     falls back to a plain user when no profile exists yet.
//
// Onboarding:
//   - Owners issue single use InviteCodes, optionally bound to one email.
//     RedeemInviteHandler checks the code, creates the credential and the
//     team profile, and marks the code used inside one transaction so two
//     concurrent redemptions cannot both succeed.
//
// Review:
//   - RecordStateMachine moves join requests, applications, orders and
//     project ideas between pending, approved, rejected and converted.
//     Only owners may transition, and every successful move writes one
//     audit entry.
//
// Audit:
//   - AuditRecorder is best-effort. Sink failures are logged and counted
//     but never fail the operation that triggered them.
package portal
