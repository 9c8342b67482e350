package challenge

// Signatures is the data the detector matches against. Changing the target site's
// markup only requires changing these lists.
type Signatures struct {
	// ChallengeSelectors locate a visible challenge widget, in priority order.
	ChallengeSelectors []string `json:"challengeSelectors"`
	// ChallengePhrases are prompts that reveal a challenge when no selector matched.
	ChallengePhrases []string `json:"challengePhrases"`
	// SliderSelectors locate the drag handle once a prompt phrase was found.
	SliderSelectors []string `json:"sliderSelectors"`

	// HandleClasses and HandleIDParts mark a matched element as the handle itself.
	HandleClasses []string `json:"handleClasses"`
	HandleIDParts []string `json:"handleIdParts"`
	// HandleSelectors search for the handle inside a matched container.
	HandleSelectors []string `json:"handleSelectors"`
	// TrackSelectors find the handle's track through its nearest matching ancestor.
	TrackSelectors []string `json:"trackSelectors"`

	FailurePhrases []string `json:"failurePhrases"`
	// FailureElements hold banner text; a banner counts when it contains a FailureNeedle.
	FailureElements []string `json:"failureElements"`
	FailureNeedles  []string `json:"failureNeedles"`

	ConnectionPhrases []string `json:"connectionPhrases"`

	// FallbackSelectors are scanned by a forced test when regular detection finds nothing.
	FallbackSelectors []string `json:"fallbackSelectors"`
}

// DefaultSignatures returns the signatures of the Alibaba "nc" slide widget.
func DefaultSignatures() Signatures {
	return Signatures{
		ChallengeSelectors: []string{
			"#nc_1_wrapper",
			`div[id*="nc_"][id*="wrapper"]`,
			`div[id^="nc_"]`,
			".nc-container",
			".nc_wrapper",
			"#nc_1_n1z",
			"span.nc_iconfont",
			".slide-verify",
			".slidetounlock",
			`div[class*="slider-verify"]`,
			`div[class*="slide-verify"]`,
			`[class*="nc_scale"]`,
			"div.nc-lang-cnt",
		},
		ChallengePhrases: []string{
			"请拖动下方滑块完成验证",
			"向右滑动完成验证",
			"请按住滑块",
			"拖动滑块",
			"滑动验证",
			"请完成验证",
			"请拖动滑块填充拼图",
			"验证",
		},
		SliderSelectors: []string{
			"span.nc_iconfont.btn_slide",
			"span.nc_iconfont",
			"div.nc_scale span",
			"#nc_1_n1t",
			".nc_iconfont",
			".slide-verify-slider-mask",
			".slide-verify-slider",
			`[class*="slider-button"]`,
			`[class*="slide-btn"]`,
			`[id*="nc_"][id*="n1t"]`,
		},
		HandleClasses: []string{"nc_iconfont"},
		HandleIDParts: []string{"n1t"},
		HandleSelectors: []string{
			"span.nc_iconfont.btn_slide",
			"span.nc_iconfont",
			"#nc_1_n1t",
			".nc_iconfont",
			`[class*="slider"]`,
		},
		TrackSelectors: []string{
			".nc-container",
			`[id^="nc_"]`,
			".nc_wrapper",
		},
		FailurePhrases: []string{
			"验证失败",
			"请再次体验",
			"error:D2WXXu",
			"error:DWXXX",
			"验证异常",
			"验证超时",
			"请再次尝试",
		},
		FailureElements: []string{".nc_scale_text", ".nc-lang-cnt", ".errloading", ".error-text"},
		FailureNeedles:  []string{"验证失败", "error:", "请再次"},
		ConnectionPhrases: []string{
			"连接中断",
			"请重连",
			"连接超时",
			"网络异常",
			"请检查网络",
			"连接失败",
			"连接断开",
		},
		FallbackSelectors: []string{
			"#nc_1_n1z",
			"#nc_1_wrapper",
			"span.nc_iconfont.btn_slide",
			"span.nc_iconfont",
			"#nc_1_n1t",
			"div.nc_scale span",
			".nc_iconfont",
			`[class*="nc_iconfont"]`,
			`[id*="nc_"][id*="n1t"]`,
			`[id^="nc_"]`,
			".slide-verify-slider",
			`[class*="slider"]`,
		},
	}
}

// ProbeSelectors returns every selector a snapshot must report on, without duplicates.
func (s Signatures) ProbeSelectors() []string {
	return unique(s.ChallengeSelectors, s.SliderSelectors, s.FallbackSelectors)
}

// ProbePhrases returns every phrase a snapshot must report on, without duplicates.
func (s Signatures) ProbePhrases() []string {
	return unique(s.ChallengePhrases, s.FailurePhrases, s.ConnectionPhrases)
}

func unique(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
