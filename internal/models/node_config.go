package models

import "time"

// NodeConfigID is the primary key of the single node configuration row.
const NodeConfigID uint = 1

type NodeConfig struct {
	ID                           uint      `json:"-" gorm:"primaryKey"`
	SimplifiedLogin              bool      `json:"simplifiedLogin"`
	EnableCustodian              bool      `json:"enableCustodian"`
	DoNotExposeUsersNames        bool      `json:"doNotExposeUsersNames"`
	Escrow                       bool      `json:"escrow"`
	Encryption                   bool      `json:"encryption"`
	CanPostponeExpiration        bool      `json:"canPostponeExpiration"`
	CanDeleteSubmission          bool      `json:"canDeleteSubmission"`
	DisableAdminNotification     bool      `json:"disableAdminNotification"`
	DisableReceiverNotification  bool      `json:"disableReceiverNotification"`
	DisableCustodianNotification bool      `json:"disableCustodianNotification"`
	DefaultLanguage              string    `json:"defaultLanguage" gorm:"type:varchar(12);default:'en'"`
	UpdatedAt                    time.Time `json:"updatedAt"`
}
