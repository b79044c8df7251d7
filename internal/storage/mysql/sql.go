package mysql

const upsertListingSQL = `
INSERT INTO listings
  (id, deal_type, is_deal, total_score, price, origin, destination, city,
   pet_friendly, breakfast_included, near_transit, payload, observed_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  deal_type          = VALUES(deal_type),
  is_deal            = VALUES(is_deal),
  total_score        = VALUES(total_score),
  price              = VALUES(price),
  origin             = VALUES(origin),
  destination        = VALUES(destination),
  city               = VALUES(city),
  pet_friendly       = VALUES(pet_friendly),
  breakfast_included = VALUES(breakfast_included),
  near_transit       = VALUES(near_transit),
  payload            = VALUES(payload),
  observed_at        = VALUES(observed_at),
  updated_at         = CURRENT_TIMESTAMP
`

const insertPriceSQL = `
INSERT INTO price_history (listing_id, price, observed_at)
VALUES (?, ?, ?)
`

const avgPriceSQL = `
SELECT AVG(price)
FROM price_history
WHERE listing_id = ? AND observed_at >= ?
`

const getListingSQL = `SELECT payload FROM listings WHERE id = ?`

// Filters are appended by the repo; this is the head of the query.
const findListingsPrefix = "SELECT payload FROM listings WHERE 1=1"

const findListingsOrder = " ORDER BY total_score DESC, id ASC LIMIT ?"

// -----------------------------------------------------------------------------
// WATCHES
// -----------------------------------------------------------------------------

const insertWatchSQL = `
INSERT INTO watches
  (id, user_id, target_id, target_type, price_threshold, inventory_threshold,
   is_active, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
`

const watchColumns = `
  id, user_id, target_id, target_type, price_threshold, inventory_threshold,
  is_active, last_checked, last_notified, last_known_price, last_known_inventory,
  price_notified, inventory_notified, created_at
`

const getWatchSQL = "SELECT" + watchColumns + "FROM watches WHERE id = ?"

const activeWatchesSQL = "SELECT" + watchColumns + "FROM watches WHERE is_active = 1 ORDER BY created_at, id"

const watchesByUserSQL = "SELECT" + watchColumns + "FROM watches WHERE user_id = ? ORDER BY created_at, id"

// Only evaluation state; thresholds and ownership are immutable after create.
const saveWatchStateSQL = `
UPDATE watches SET
  last_checked         = ?,
  last_notified        = ?,
  last_known_price     = ?,
  last_known_inventory = ?,
  price_notified       = ?,
  inventory_notified   = ?
WHERE id = ?
`

const deactivateWatchSQL = `UPDATE watches SET is_active = 0 WHERE id = ?`
