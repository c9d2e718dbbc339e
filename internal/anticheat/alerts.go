package anticheat

import (
	"fmt"

	"github.com/housekeeper/internal/domain"
)

func (a *Analyzer) baseAlert(score *domain.Score, title string) domain.Alert {
	p := &score.Player
	alert := domain.Alert{
		Title: fmt.Sprintf("[%s] %s", score.Mode, title),
		Color: domain.AlertColor,
		Author: domain.AlertAuthor{
			Name:    p.Name,
			URL:     p.ProfileURL(a.cfg.Domain),
			IconURL: p.AvatarURL(a.cfg.Domain),
		},
		ThumbnailURL: a.cfg.ThumbnailURL,
	}
	alert.AddField("Map", fmt.Sprintf("[%s](%s)", score.Beatmap.FullName, score.Beatmap.URL(a.cfg.Domain)))
	alert.AddField("Replay", fmt.Sprintf("[Download](%s)", a.fetcher.URL(score.ID)))
	return alert
}

func (a *Analyzer) unstableRateAlert(score *domain.Score, ur float64) domain.Alert {
	alert := a.baseAlert(score, fmt.Sprintf("Possibly relax score. (%.2f UR)", ur))
	alert.AddField("Unstable rate", fmt.Sprintf("%.2f (cap %.2f)", ur, a.cfg.UnstableRateCap))
	return alert
}

func (a *Analyzer) meanFrameTimeAlert(score *domain.Score, mean float64) domain.Alert {
	alert := a.baseAlert(score, fmt.Sprintf("Possibly Timewarped score. (%.2f avg. frametime)", mean))
	alert.AddField("Avg. frametime", fmt.Sprintf("%.2fms (cap %.2fms)", mean, a.cfg.FrameTimeCap))
	return alert
}

func (a *Analyzer) frameRatioAlert(score *domain.Score, before, after int, ratio float64, imageURL string) domain.Alert {
	alert := a.baseAlert(score, fmt.Sprintf("Possibly Timewarped score. (%d before / %d after)", before, after))
	alert.AddField("Frame ratio", fmt.Sprintf("%.2f%% (cap %.2f%%)", ratio, a.cfg.RelaxFrameRatioCap))
	alert.ImageURL = imageURL
	return alert
}

func (a *Analyzer) snapsAlert(score *domain.Score, snaps int) domain.Alert {
	alert := a.baseAlert(score, fmt.Sprintf("Too many snaps! (%d snaps)", snaps))
	alert.AddField("Snaps", fmt.Sprintf("%d (cap %d)", snaps, a.cfg.SnapsCap))
	return alert
}
