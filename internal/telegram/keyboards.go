package telegram

import (
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/attention-tracker/internal/zone"
)

// Button is a link button attached below a message
type Button struct {
	Text string
	URL  string
}

const zoneCallbackPrefix = "zone:"

// ZonesKeyboard returns one toggle button per zone
func ZonesKeyboard(enabled zone.Set) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	for _, z := range zone.All {
		mark := "🔕"
		if enabled.Has(z) {
			mark = "🔔"
		}
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: mark + " " + z.Title(), CallbackData: zoneCallbackPrefix + string(z)},
		})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// LinksKeyboard puts link buttons on a single row
func LinksKeyboard(buttons []Button) *models.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}

	row := make([]models.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, models.InlineKeyboardButton{Text: b.Text, URL: b.URL})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{row}}
}
