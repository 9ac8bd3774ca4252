package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/repx/internal/application"
	"github.com/bnema/repx/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const progressBarWidth = 20

type RenderOptions struct {
	Now        time.Time
	DailyLimit int
	// CooldownWindow is the longest cooldown expected and scales the color of
	// the time left. Zero means the default daily cooldown.
	CooldownWindow time.Duration
}

func renderView(sum boardSummary, rows []application.AccountStatus, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Rep4Rep Accounts"),
		s.header.Render(fmt.Sprintf("accounts: %d  today: %d  week: %d", sum.accounts, sum.today, sum.week)),
	}

	if sum.accounts > 0 {
		lines = append(lines, s.meta.Render(fmt.Sprintf("farm: %d  idle: %d  error: %d  left today: %d",
			sum.byState[application.AccountStateFarm],
			sum.byState[application.AccountStateIdle],
			sum.byState[application.AccountStateError],
			sum.remaining,
		)))
	}

	if len(rows) == 0 {
		lines = append(lines, s.empty.Render("No accounts configured."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, row := range rows {
		lines = append(lines, s.section.Render(renderAccount(row, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAccount(row application.AccountStatus, opts RenderOptions, s styles) string {
	parts := []string{
		s.account.Render(accountTitle(row.Nickname, row.ID)),
		lipgloss.JoinHorizontal(lipgloss.Top, s.key.Render("state:"), " ", stateLabel(row.State, s), " ", s.meta.Render(row.Label)),
		progressLine(row, opts, s),
	}

	if row.State == application.AccountStateIdle && !row.CooldownUntil.IsZero() {
		parts = append(parts, cooldownLine(row.CooldownUntil, opts, s))
	}
	if row.LastError != "" {
		parts = append(parts, s.warning.Render("last error: "+row.LastError))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func stateLabel(state application.AccountState, s styles) string {
	switch state {
	case application.AccountStateFarm:
		return s.farm.Render(string(state))
	case application.AccountStateIdle:
		return s.idle.Render(string(state))
	case application.AccountStateError:
		return s.failed.Render(string(state))
	default:
		return s.detail.Render(string(state))
	}
}

func progressLine(row application.AccountStatus, opts RenderOptions, s styles) string {
	limit := opts.DailyLimit

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.key.Render("today:"),
		" ",
		renderProgressBar(row.Progress, limit, progressBarWidth, s),
		" ",
		s.detail.Render(fmt.Sprintf("%d/%d", row.Progress, limit)),
		"  ",
		s.meta.Render(fmt.Sprintf("week: %d  total: %d", row.Weekly, row.TotalCompleted)),
	)
}

func cooldownLine(until time.Time, opts RenderOptions, s styles) string {
	window := opts.CooldownWindow

	style := lipgloss.NewStyle().Foreground(cooldownColor(until, opts.Now, window))
	return lipgloss.JoinHorizontal(lipgloss.Top, s.key.Render("cooldown:"), " ", style.Render(formatCooldown(until, opts.Now)))
}

func renderProgressBar(done int, limit int, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	fraction := 0.0
	if limit > 0 {
		fraction = float64(done) / float64(limit)
	}
	filled := int(math.Round(float64(width) * fraction))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func formatClock(at, now time.Time) string {
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}

	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := at.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return at.Format("15:04")
	}

	return at.Format("15:04 on 02 Jan")
}

func formatCooldown(until, now time.Time) string {
	if now.IsZero() {
		return "until " + formatClock(until, now)
	}
	if !until.After(now) {
		return "ready now"
	}

	remaining := until.Sub(now)
	if remaining < time.Hour {
		minutes := int(math.Ceil(remaining.Minutes()))
		suffix := "minutes"
		if minutes == 1 {
			suffix = "minute"
		}
		return fmt.Sprintf("ready in %d %s (%s)", minutes, suffix, formatClock(until, now))
	}

	hours := int(math.Ceil(remaining.Hours()))
	suffix := "hours"
	if hours == 1 {
		suffix = "hour"
	}
	return fmt.Sprintf("ready in %d %s (%s)", hours, suffix, formatClock(until, now))
}

func accountTitle(nickname string, id domain.AccountID) string {
	trimmed := strings.TrimSpace(nickname)
	if trimmed == "" || trimmed == string(id) {
		return string(id)
	}
	return fmt.Sprintf("%s (%s)", trimmed, id)
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// ANSI 256 greyscale ramp, 240 (faded) to 255 (bright).
	baseColor := 240.0
	targetColor := 255.0
	colorCode := int(baseColor + (targetColor-baseColor)*normalized)

	return lipgloss.Color(fmt.Sprintf("%d", colorCode))
}

// cooldownColor brightens as the cooldown nears its end.
func cooldownColor(until, now time.Time, window time.Duration) lipgloss.Color {
	if now.IsZero() || until.Before(now) {
		return lipgloss.Color("255")
	}

	remaining := until.Sub(now)
	return interpolateColor(window.Seconds()-remaining.Seconds(), 0, window.Seconds())
}
