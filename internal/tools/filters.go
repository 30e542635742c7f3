// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Ffmpeg filter availability checks. Not every ffmpeg build ships every
// metric filter, libvmaf in particular is a compile time option.

package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/evolution-gaming/vqmeter/internal/logging"
)

// AvailableFilters will query ffmpeg for registered filter names.
func AvailableFilters(ctx context.Context) ([]string, error) {
	ffmpegPath, err := FfmpegPath()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-filters") //#nosec G204
	logging.Debugf("Running: %s\n", cmd)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("AvailableFilters() exec error: %w", err)
	}
	return parseFilters(out), nil
}

// parseFilters extracts filter names from ffmpeg -filters output. Header and
// legend lines are dropped by requiring an io pattern column, e.g.
//
//	TSC psnr              VV->V      Calculate the PSNR between two video streams.
func parseFilters(out []byte) []string {
	var filters []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || !strings.Contains(fields[2], "->") {
			continue
		}
		filters = append(filters, fields[1])
	}
	return filters
}

// MissingFilters reports which of the wanted filter names ffmpeg does not
// provide.
func MissingFilters(ctx context.Context, want []string) ([]string, error) {
	have, err := AvailableFilters(ctx)
	if err != nil {
		return nil, err
	}

	haveSet := make(map[string]bool, len(have))
	for _, f := range have {
		haveSet[f] = true
	}
	var missing []string
	for _, f := range want {
		if !haveSet[f] {
			missing = append(missing, f)
		}
	}
	return missing, nil
}
