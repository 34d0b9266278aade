package mysql

const entityColumns = "id, name, category, city, price, photo, num_ratings, sum_rating, avg_rating, created_at"

const getEntitySQL = "SELECT " + entityColumns + " FROM entities WHERE id = ?"

// Row lock held until commit; concurrent aggregations on one entity queue here.
const getEntityForUpdateSQL = getEntitySQL + " FOR UPDATE"

const listEntitiesSQL = "SELECT " + entityColumns + " FROM entities"

// created_at is COALESCE(?, CURRENT_TIMESTAMP(6)) so callers without a
// timestamp get the server's clock.
const insertEntitySQL = `
INSERT INTO entities
  (id, name, category, city, price, photo, num_ratings, sum_rating, avg_rating, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP(6)))
`

const updateRatingsSQL = `
UPDATE entities
SET num_ratings = ?,
    sum_rating  = ?,
    avg_rating  = ?
WHERE id = ?
`

const updatePhotoSQL = "UPDATE entities SET photo = ? WHERE id = ?"

const entityExistsSQL = "SELECT 1 FROM entities WHERE id = ?"

// Note: `text` is reserved; keep it quoted everywhere.
const insertReviewSQL = "INSERT INTO reviews\n  (id, entity_id, rating, `text`, user_id, created_at)\nVALUES\n  (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP(6)))"

const reviewCreatedAtSQL = "SELECT created_at FROM reviews WHERE id = ?"

// Newest first; aligns with index (entity_id, created_at).
const listReviewsSQL = "SELECT id, entity_id, rating, `text`, user_id, created_at\nFROM reviews\nWHERE entity_id = ?\nORDER BY created_at DESC, id DESC"
