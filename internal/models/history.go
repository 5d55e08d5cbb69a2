package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ArchivedOrder is the immutable history record written when an order
// transitions out of the active slot.
type ArchivedOrder struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Order       `bson:",inline"`
	FinalStatus string    `bson:"final_status" json:"final_status"`
	Reason      string    `bson:"reason" json:"reason"`
	Refunded    bool      `bson:"refunded" json:"refunded"`
	ArchivedAt  time.Time `bson:"archived_at" json:"archived_at"`
}
