package model

import "time"

// Client is a managed account copied from the client system of record.
type Client struct {
	ID                 int64      `json:"client_id"`
	Code               string     `json:"client_code"`
	Name               *string    `json:"client_name"`
	CompanyName        *string    `json:"client_company_name"`
	RelationshipStatus *string    `json:"relationship_status"`
	AccountManagerID   *string    `json:"assigned_account_manager_id,omitempty"`
	AccountManagerName *string    `json:"assigned_account_manager_name"`
	InboxManagerID     *string    `json:"assigned_inbox_manager_id,omitempty"`
	InboxManagerName   *string    `json:"assigned_inbox_manager_name"`
	SDRID              *string    `json:"assigned_sdr_id,omitempty"`
	SDRName            *string    `json:"assigned_sdr_name"`
	Closelix           bool       `json:"closelix"`
	OnboardingDate     *time.Time `json:"onboarding_date,omitempty"`
	ExitDate           *time.Time `json:"exit_date,omitempty"`

	WeeklyTargetRaw     *string `json:"weekly_target,omitempty"`
	WeeklyTargetInt     *int64  `json:"weekly_target_int"`
	WeeklyTargetMissing bool    `json:"weekly_target_missing"`

	WeekendSendingEffective bool     `json:"weekend_sending_effective"`
	BonusPoolMonthly        *float64 `json:"bonus_pool_monthly,omitempty"`
}

// Active reports whether the client has not exited the program.
func (c Client) Active() bool {
	return c.ExitDate == nil
}

// DisplayName returns the client name, falling back to the code.
func (c Client) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.Code
}

// HasTarget reports whether a positive weekly target is configured.
func (c Client) HasTarget() bool {
	return c.WeeklyTargetInt != nil && *c.WeeklyTargetInt > 0
}
