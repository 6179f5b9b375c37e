// Package render draws a student's weekly timetable as a PNG.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const (
	imageWidth       = 1400
	imageHeight      = 900
	headerHeight     = 100
	leftLabelsWidth  = 80
	legendWidth      = 140
	dayPaddingX      = 8
	minLessonHeight  = 8.0
	lessonRadius     = 6.0
	shadowOffset     = 3.0
	daysInWeek       = 7
	hourPaddingTop   = 1
	hourPaddingBot   = 1
	defaultFirstHour = 8
	defaultLastHour  = 20
	maxTitleLen      = 22
)

const (
	titleFontSize  = 26.0
	dayFontSize    = 22.0
	hourFontSize   = 16.0
	lessonFontSize = 15.0
	legendFontSize = 13.0
)

var (
	bgColor          = color.RGBA{245, 246, 248, 255}
	textColor        = color.RGBA{80, 85, 90, 220}
	hourLabelColor   = color.RGBA{110, 115, 120, 200}
	hourLineColor    = color.NRGBA{150, 150, 150, 255}
	todayBgColor     = color.NRGBA{255, 99, 71, 90}
	evenDayColor     = color.NRGBA{240, 240, 240, 255}
	oddDayColor      = color.NRGBA{225, 225, 225, 255}
	currentTimeColor = color.NRGBA{255, 80, 80, 200}
	lessonTextColor  = color.RGBA{20, 24, 28, 230}
	shadowColor      = color.RGBA{0, 0, 0, 20}
	legendTextColor  = color.RGBA{70, 74, 78, 220}
)

var statusColors = map[model.LessonStatus]color.RGBA{
	model.LessonStatusPending:   {250, 214, 120, 230},
	model.LessonStatusScheduled: {133, 193, 85, 220},
	model.LessonStatusCompleted: {140, 180, 230, 220},
	model.LessonStatusCanceled:  {170, 170, 170, 200},
}

var legend = []model.LessonStatus{
	model.LessonStatusScheduled,
	model.LessonStatusPending,
	model.LessonStatusCompleted,
	model.LessonStatusCanceled,
}

type fontStyle int

const (
	regular fontStyle = iota
	bold
)

var (
	fontsOnce sync.Once
	fonts     map[fontStyle]*opentype.Font
)

func parseFonts() {
	fonts = make(map[fontStyle]*opentype.Font, 2)
	for style, data := range map[fontStyle][]byte{regular: goregular.TTF, bold: gobold.TTF} {
		if f, err := opentype.Parse(data); err == nil {
			fonts[style] = f
		}
	}
}

// setFont switches to the Go font at size, falling back to basicfont.
func setFont(dc *gg.Context, size float64, style fontStyle) {
	fontsOnce.Do(parseFonts)

	if f, ok := fonts[style]; ok {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err == nil {
			dc.SetFontFace(face)
			return
		}
	}
	dc.SetFontFace(basicfont.Face7x13)
}

type hourRange struct {
	start int
	end   int
	total int
}

// Week draws the seven days starting at weekStart (a Monday) with the given
// lessons. Times are shown in weekStart's location; now marks today and the
// current time when it falls inside the week.
func Week(weekStart time.Time, lessons []*model.Lesson, now time.Time) ([]byte, error) {
	loc := weekStart.Location()
	weekStart = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, loc)
	weekEnd := weekStart.AddDate(0, 0, daysInWeek)
	now = now.In(loc)
	nowInWeek := !now.Before(weekStart) && now.Before(weekEnd)

	byDay := make(map[string][]*model.Lesson)
	for _, l := range lessons {
		key := l.StartTime.In(loc).Format("2006-01-02")
		byDay[key] = append(byDay[key], l)
	}
	hours := hourSpan(lessons, loc)

	dc := gg.NewContext(imageWidth, imageHeight)
	dc.SetColor(bgColor)
	dc.Clear()

	dayWidth := (imageWidth - leftLabelsWidth - legendWidth) / daysInWeek
	dayHeight := imageHeight - headerHeight
	cellHeight := float64(dayHeight) / float64(hours.total)

	drawHeader(dc, weekStart, weekEnd.AddDate(0, 0, -1))
	drawHourLabels(dc, hours, cellHeight)

	day := weekStart
	for i := 0; i < daysInWeek; i++ {
		x := float64(leftLabelsWidth + i*dayWidth)
		y := float64(headerHeight)
		isToday := nowInWeek && sameDay(day, now)

		drawDayBackground(dc, x, y, dayWidth, dayHeight, i, isToday)
		drawDayHeader(dc, day, x, y, dayWidth)
		drawHourLines(dc, x, y, dayWidth, hours, cellHeight)
		for _, l := range byDay[day.Format("2006-01-02")] {
			drawLesson(dc, l, loc, x, y, dayWidth, hours, cellHeight)
		}
		day = day.AddDate(0, 0, 1)
	}

	if nowInWeek {
		drawCurrentTime(dc, now, hours, cellHeight, dayWidth)
	}
	drawLegend(dc, dayWidth)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func hourSpan(lessons []*model.Lesson, loc *time.Location) hourRange {
	first, last := 24, 0
	for _, l := range lessons {
		start, end := l.StartTime.In(loc), l.EndTime.In(loc)
		endHour := end.Hour()
		if end.Minute() > 0 {
			endHour++
		}
		if !sameDay(start, end) {
			endHour = 24
		}
		if start.Hour() < first {
			first = start.Hour()
		}
		if endHour > last {
			last = endHour
		}
	}
	if first == 24 {
		first, last = defaultFirstHour, defaultLastHour
	}

	start := max(first-hourPaddingTop, 0)
	end := min(last+hourPaddingBot, 24)
	return hourRange{start: start, end: end, total: end - start}
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func drawHeader(dc *gg.Context, from, to time.Time) {
	title := from.Format("January 2006")
	if from.Month() != to.Month() {
		title = from.Format("January") + " - " + to.Format("January 2006")
	}

	setFont(dc, titleFontSize, bold)
	dc.SetColor(textColor)
	w, h := dc.MeasureString(title)
	dc.DrawStringAnchored(title, w/2+10, float64(headerHeight)/8+h/2, 0, 0)
}

func drawHourLabels(dc *gg.Context, hours hourRange, cellHeight float64) {
	setFont(dc, hourFontSize, regular)
	dc.SetColor(hourLabelColor)

	for i := 0; i <= hours.total; i++ {
		y := float64(headerHeight) + float64(i)*cellHeight
		dc.DrawStringAnchored(fmt.Sprintf("%02d:00", (hours.start+i)%24), float64(leftLabelsWidth)-10, y, 1, 0.5)
	}
}

func drawDayBackground(dc *gg.Context, x, y float64, dayWidth, dayHeight, index int, isToday bool) {
	switch {
	case isToday:
		dc.SetColor(todayBgColor)
	case index%2 == 0:
		dc.SetColor(evenDayColor)
	default:
		dc.SetColor(oddDayColor)
	}
	dc.DrawRectangle(x, y, float64(dayWidth), float64(dayHeight))
	dc.Fill()
}

func drawDayHeader(dc *gg.Context, date time.Time, x, y float64, dayWidth int) {
	setFont(dc, dayFontSize, bold)
	dc.SetColor(textColor)
	dc.DrawStringAnchored(date.Format("02.01"), x+float64(dayWidth)/2, y, 0.5, -1)
	dc.DrawStringAnchored(date.Format("Mon"), x+float64(dayWidth)/2, y, 0.5, -0.2)
}

func drawHourLines(dc *gg.Context, x, y float64, dayWidth int, hours hourRange, cellHeight float64) {
	dc.SetLineWidth(0.3)
	dc.SetColor(hourLineColor)

	for i := 0; i <= hours.total; i++ {
		hy := y + float64(i)*cellHeight
		dc.DrawLine(x, hy, x+float64(dayWidth), hy)
		dc.Stroke()
	}
}

func drawLesson(dc *gg.Context, l *model.Lesson, loc *time.Location, x, y float64, dayWidth int, hours hourRange, cellHeight float64) {
	start, end := l.StartTime.In(loc), l.EndTime.In(loc)
	startHour := float64(start.Hour()) + float64(start.Minute())/60
	endHour := startHour + end.Sub(start).Hours()
	if endHour > float64(hours.end) {
		endHour = float64(hours.end)
	}

	top := y + (startHour-float64(hours.start))*cellHeight
	height := (endHour - startHour) * cellHeight
	if height < minLessonHeight {
		height = minLessonHeight
	}
	width := float64(dayWidth) - float64(dayPaddingX*2)
	fill, ok := statusColors[l.Status]
	if !ok {
		fill = statusColors[model.LessonStatusPending]
	}

	dc.SetColor(shadowColor)
	dc.DrawRoundedRectangle(x+dayPaddingX+shadowOffset, top+2+shadowOffset, width, height-4, lessonRadius)
	dc.Fill()

	dc.SetColor(fill)
	dc.DrawRoundedRectangle(x+dayPaddingX, top+2, width, height-4, lessonRadius)
	dc.Fill()

	dc.SetColor(darken(fill, 0.8))
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x+dayPaddingX, top+2, width, height-4, lessonRadius)
	dc.Stroke()

	textX := x + dayPaddingX + 8
	textY := top + 18
	setFont(dc, lessonFontSize, bold)
	dc.SetColor(lessonTextColor)
	dc.DrawStringAnchored(start.Format("15:04"), textX, textY, 0, 0)

	if height > 30 {
		setFont(dc, lessonFontSize-2, regular)
		dc.DrawStringAnchored(truncate(l.Title, maxTitleLen), textX, textY+16, 0, 0)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func darken(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}

func drawCurrentTime(dc *gg.Context, now time.Time, hours hourRange, cellHeight float64, dayWidth int) {
	hour := float64(now.Hour()) + float64(now.Minute())/60
	if hour < float64(hours.start) || hour > float64(hours.end) {
		return
	}

	y := float64(headerHeight) + (hour-float64(hours.start))*cellHeight
	dc.SetColor(currentTimeColor)
	dc.SetLineWidth(2)
	dc.DrawLine(float64(leftLabelsWidth), y, float64(leftLabelsWidth+daysInWeek*dayWidth), y)
	dc.Stroke()
}

func drawLegend(dc *gg.Context, dayWidth int) {
	const boxW, boxH = 20.0, 14.0
	x := float64(leftLabelsWidth + daysInWeek*dayWidth + 10)
	y := float64(imageHeight) - 130

	setFont(dc, legendFontSize, regular)
	for _, status := range legend {
		dc.SetColor(statusColors[status])
		dc.DrawRoundedRectangle(x, y, boxW, boxH, 3)
		dc.Fill()

		dc.SetColor(legendTextColor)
		dc.DrawStringAnchored(string(status), x+boxW+8, y+boxH/2+1, 0, 0.2)
		y += boxH + 14
	}
}
