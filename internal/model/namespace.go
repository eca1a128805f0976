package model

import "time"

// VectorNamespace is the ORM model for the vector_namespaces table.
// Each namespace records which embedding backend populated it so that
// queries always embed with the matching backend and a mid-namespace
// backend switch is rejected instead of mixing embedding spaces.
type VectorNamespace struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Namespace  string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"namespace"`
	Backend    string    `gorm:"type:varchar(32);not null" json:"backend"`
	Dimensions int       `gorm:"not null" json:"dimensions"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName sets the table name for the VectorNamespace model.
func (VectorNamespace) TableName() string {
	return "vector_namespaces"
}
