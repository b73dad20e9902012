package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteOrderEvent records an order lifecycle transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
// durationS is the order's age at the transition, 0 while unknown.
func (c *Client) WriteOrderEvent(orderID, status, color, orderType string, durationS float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"order_events",
		map[string]string{
			"status":     status,
			"color":      color,
			"order_type": orderType,
		},
		map[string]interface{}{
			"order_id":   orderID,
			"duration_s": durationS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteIntakeEvent records one classified inbound message. Topics are
// folded into category tags to keep series cardinality bounded.
func (c *Client) WriteIntakeEvent(category, subCategory, serial string) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"category":     category,
		"sub_category": subCategory,
	}
	if serial != "" {
		tags["serial"] = serial
	}

	point := write.NewPoint(
		"intake",
		tags,
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDispatchEvent records one outbound module command with the
// sequence number it carried.
func (c *Client) WriteDispatchEvent(serial, command string, orderUpdateID int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dispatch",
		map[string]string{
			"serial":  serial,
			"command": command,
		},
		map[string]interface{}{
			"order_update_id": orderUpdateID,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and
// fields, for measurements the helpers do not cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp,
// for data that arrives delayed.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
