// Package quota enforces per-user_type resource limits, adapted from the
// teacher's user+group hierarchy enforcer down to a flat tier table: this
// system's data model has no separate Group entity, so there is nothing
// left to merge limits across beyond one user's own user_type.
//
// Quota hierarchy:
//  1. Platform-default limits for the user's user_type (free/pro/
//     enterprise/admin)
//
// Enforcement points:
//   - Session creation (CheckSessionCreation) — concurrent session count
//     and per-session CPU/memory/GPU caps.
//   - Storage provisioning (CheckStorageRequest) — total persistent
//     storage per user, grounding the quota_exceeded error kind.
package quota

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
)

// Limits is one user_type's resource ceiling.
//
// Units:
//   - CPU: cores (fractional)
//   - Memory: GiB
//   - Storage: GiB
//   - GPU: integer count
type Limits struct {
	MaxSessions         int
	MaxCPUPerSession    float64
	MaxMemoryPerSession float64
	MaxGPUPerSession    int
	MaxStorageGB        float64
}

// defaultLimits is the platform-wide tier table (spec §6's user_type
// values: free, pro, enterprise, admin).
var defaultLimits = map[models.UserType]Limits{
	models.UserFree: {
		MaxSessions: 5, MaxCPUPerSession: 2, MaxMemoryPerSession: 4,
		MaxGPUPerSession: 0, MaxStorageGB: 50,
	},
	models.UserPro: {
		MaxSessions: 20, MaxCPUPerSession: 4, MaxMemoryPerSession: 16,
		MaxGPUPerSession: 1, MaxStorageGB: 500,
	},
	models.UserEnterprise: {
		MaxSessions: 100, MaxCPUPerSession: 16, MaxMemoryPerSession: 64,
		MaxGPUPerSession: 4, MaxStorageGB: 5000,
	},
	models.UserAdmin: {
		MaxSessions: 1000, MaxCPUPerSession: 32, MaxMemoryPerSession: 128,
		MaxGPUPerSession: 8, MaxStorageGB: 50000,
	},
}

// Usage is a user's current resource consumption, tallied by the caller
// from the store before calling the Enforcer.
type Usage struct {
	ActiveSessions int
	TotalStorageGB float64
}

// Enforcer checks requested resources against a user_type's Limits. It is
// stateless and safe for concurrent use.
type Enforcer struct{}

func NewEnforcer() *Enforcer { return &Enforcer{} }

// LimitsFor returns the platform default limits for a user_type, falling
// back to the free tier for an unrecognized value.
func LimitsFor(userType models.UserType) Limits {
	if l, ok := defaultLimits[userType]; ok {
		return l
	}
	return defaultLimits[models.UserFree]
}

// CheckSessionCreation rejects a new session that would push the user over
// their tier's concurrent-session count or per-session CPU/memory/GPU cap.
func (e *Enforcer) CheckSessionCreation(ctx context.Context, userType models.UserType, spec models.ResourceSpec, usage Usage) error {
	limits := LimitsFor(userType)

	if usage.ActiveSessions >= limits.MaxSessions {
		return sferrors.QuotaExceeded("quota.CheckSessionCreation",
			fmt.Sprintf("user already has %d active sessions, tier limit is %d", usage.ActiveSessions, limits.MaxSessions))
	}
	if spec.CPUCores > limits.MaxCPUPerSession {
		return sferrors.QuotaExceeded("quota.CheckSessionCreation",
			fmt.Sprintf("requested %.1f cpu cores exceeds tier limit of %.1f", spec.CPUCores, limits.MaxCPUPerSession))
	}
	if spec.MemoryGB > limits.MaxMemoryPerSession {
		return sferrors.QuotaExceeded("quota.CheckSessionCreation",
			fmt.Sprintf("requested %.1f GiB memory exceeds tier limit of %.1f", spec.MemoryGB, limits.MaxMemoryPerSession))
	}
	if spec.GPUCount > limits.MaxGPUPerSession {
		return sferrors.QuotaExceeded("quota.CheckSessionCreation",
			fmt.Sprintf("requested %d gpus exceeds tier limit of %d", spec.GPUCount, limits.MaxGPUPerSession))
	}
	return nil
}

// CheckStorageRequest rejects a new bucket/filestore allocation that would
// push the user's total persistent storage over their tier's cap.
func (e *Enforcer) CheckStorageRequest(ctx context.Context, userType models.UserType, requestedGB float64, usage Usage) error {
	limits := LimitsFor(userType)
	if usage.TotalStorageGB+requestedGB > limits.MaxStorageGB {
		return sferrors.QuotaExceeded("quota.CheckStorageRequest",
			fmt.Sprintf("requesting %.1f GiB would bring total to %.1f GiB, tier limit is %.1f GiB",
				requestedGB, usage.TotalStorageGB+requestedGB, limits.MaxStorageGB))
	}
	return nil
}

// ParseResourceQuantity parses a Kubernetes resource quantity string (e.g.
// "2", "4Gi") into a float64 in cores or GiB, carried over unchanged from
// the teacher for callers that accept quantity strings from templates.
func ParseResourceQuantity(quantity string) (float64, error) {
	q, err := resource.ParseQuantity(quantity)
	if err != nil {
		return 0, fmt.Errorf("invalid resource quantity %q: %w", quantity, err)
	}
	return q.AsApproximateFloat64(), nil
}
