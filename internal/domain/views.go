package domain

import "time"

// Read models handed to presentation code. Plain data only.

type EntityView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	City       string    `json:"city"`
	Price      int       `json:"price"`
	Photo      string    `json:"photo"`
	NumRatings int       `json:"numRatings"`
	SumRating  float64   `json:"sumRating"`
	AvgRating  float64   `json:"avgRating"`
	Timestamp  time.Time `json:"timestamp"`
}

type ReviewView struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entityId"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// Topics published on the Broker when data changes.
const TopicEntities = "entities"

func TopicEntity(id string) string  { return "entities:" + id }
func TopicReviews(id string) string { return "entities:" + id + ":reviews" }
