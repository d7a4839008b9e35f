package renewal

import "errors"

var (
	// ErrProvisioningInProgress is returned when a check is requested for a
	// domain that is already being provisioned.
	ErrProvisioningInProgress = errors.New("renewal: provisioning already in progress")

	// ErrUnknownDomain is returned by Status for domains the orchestrator
	// has never seen.
	ErrUnknownDomain = errors.New("renewal: unknown domain")
)
