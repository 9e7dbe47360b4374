package dialogs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/devradar/internal/geo"
)

// ParseCoordinates reads "lat, lon" or "lat lon".
func ParseCoordinates(s string) (geo.Coordinates, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 2 {
		return geo.Coordinates{}, fmt.Errorf("expected \"latitude, longitude\", got %q", s)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("longitude: %w", err)
	}
	c := geo.Coordinates{Latitude: lat, Longitude: lon}
	if !c.Valid() {
		return geo.Coordinates{}, fmt.Errorf("out of range: %s", c)
	}
	return c, nil
}

// GotoDialog asks for coordinates to center the viewport on.
func GotoDialog(current string, onSubmit func(geo.Coordinates), onCancel func()) *tview.Form {
	form := tview.NewForm()
	form.SetBorder(true).SetTitle(" Go to ").SetTitleAlign(tview.AlignLeft)
	form.SetBackgroundColor(tcell.ColorDefault)
	form.SetFieldBackgroundColor(tcell.ColorDefault)

	form.AddInputField("Lat, Lon", current, 40, nil, nil)
	form.AddButton("Go", func() {
		field := form.GetFormItemByLabel("Lat, Lon").(*tview.InputField)
		c, err := ParseCoordinates(field.GetText())
		if err != nil {
			form.SetTitle(" Go to: invalid coordinates ")
			return
		}
		onSubmit(c)
	})
	form.AddButton("Cancel", onCancel)
	form.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			onCancel()
			return nil
		}
		return event
	})
	return form
}
