// Package publish uploads an artifact to a Terraform-Cloud-style run
// orchestration service.
//
// Publishing is a three-phase protocol run once per Job:
//
//  1. Create a configuration version for the workspace. The response
//     carries a one-time upload URL.
//  2. PUT a gzip'd tar holding the artifact as main.tf to that URL.
//  3. A 2xx upload response verifies the job.
//
// A Job moves Idle -> ConfigVersionCreated -> ArchiveUploaded -> Verified,
// or to Failed from any non-terminal state. ArchiveUploaded is entered only
// once the upload was accepted; a rejected upload fails straight from
// ConfigVersionCreated. Transitions only move forward.
// Nothing is retried automatically. An upload URL is never reused, so a
// retry is a new Job that starts by creating a new configuration version.
package publish
