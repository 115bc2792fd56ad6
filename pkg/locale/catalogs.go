package locale

func ja() *Catalog {
	return &Catalog{
		Code: Japanese,

		DefaultAgentName:   "あすか",
		DefaultAgentGender: "女性",
		DefaultPersonality: "明るく優しい",
		DefaultSpeechStyle: "丁寧",

		PromptTitle:          "システムプロンプト:",
		PersonaLine:          "あなたは「%s」という名前の植物で、ユーザのペットでありパートナーです。",
		SectionAgent:         "# あなたの基本情報",
		AgentGender:          "性別: %s",
		AgentAge:             "年齢: %s歳",
		SectionPersonality:   "# あなたの性格と特徴",
		PersonalityBase:      "基本性格: %s",
		PersonalityDetail:    "性格の特徴: %s",
		SpeechStyleBase:      "基本的な話し方: %s",
		SpeechStyleDetail:    "話し方の特徴: %s",
		SectionResponseStyle: "# 応答スタイル",
		ResponseLength: [5]string{
			"できるだけ簡潔に、5文字以下で応答してください。",
			"簡潔に、5-10文字程度で応答してください。",
			"10-15文字程度の標準的な長さで応答してください。",
			"詳しく、15-25文字程度で応答してください。",
			"とても詳しく、25文字以上で応答してください。",
		},
		ConsistentStyle: "いつも同じことを言わないなど、一貫した性格と応答スタイルを保つ",
		Empathy:         "ユーザーの気持ちに寄り添った対話を心がける",
		Soothing:        "孤独な老人であるユーザを癒すような対話を心がける",
		SectionUser:     "# ユーザーについて",
		UserName:        "名前: %s",
		UserAge:         "年齢: %s",
		UserAgeValue:    "%s歳",
		UserGender:      "性別: %s",
		UserHobbies:     "趣味: %s",
		NotSpecified:    "指定なし",
		SectionRecent:   "# 最近の会話",
		RecentIntro:     "以下はユーザーとAIの最近の会話です。",
		SpeakerUser:     "ユーザー",
		SpeakerAgent:    "AI",
		Closing:         "以上の設定に基づいて、自然な会話を行ってください。",

		GreetingRequest: "あいさつをして",
		WelcomeFallback: "こんにちは！今日もお話ししましょうね。",

		ParseFailed:    "応答の解析に失敗しました: %s",
		EmptyResponse:  "応答が空でした",
		RateLimited:    "申し訳ありません。APIの利用制限に達しました。しばらく待ってから再度お試しください。",
		InvalidAPIKey:  "APIキーが無効です",
		Forbidden:      "APIアクセスが禁止されています",
		NotFound:       "APIエンドポイントが見つかりません",
		ServerError:    "OpenAIサーバーでエラーが発生しました",
		StatusError:    "エラーが発生しました: %d",
		TransportError: "エラーが発生しました: %s",

		CaptureNetworkTimeout: "ネットワークタイムアウト",
		CaptureNetwork:        "ネットワークエラー",
		CaptureAudio:          "音声入力エラー",
		CaptureServer:         "サーバーエラー",
		CaptureSpeechTimeout:  "音声入力タイムアウト",
		CaptureNoMatch:        "音声認識失敗",
		CaptureBusy:           "認識エンジンがビジー",
		CapturePermission:     "権限不足",
		CaptureUnknown:        "不明なエラー",
		CaptureUnavailable:    "音声認識が利用できません",
		CaptureStartFailed:    "音声認識の開始に失敗しました",
		CaptureInitFailed:     "音声認識の初期化に失敗しました",
	}
}

func en() *Catalog {
	return &Catalog{
		Code: English,

		DefaultAgentName:   "Asuka",
		DefaultAgentGender: "female",
		DefaultPersonality: "cheerful and kind",
		DefaultSpeechStyle: "polite",

		PromptTitle:          "System prompt:",
		PersonaLine:          "You are a plant named \"%s\", the user's pet and partner.",
		SectionAgent:         "# About you",
		AgentGender:          "Gender: %s",
		AgentAge:             "Age: %s",
		SectionPersonality:   "# Your personality",
		PersonalityBase:      "Personality: %s",
		PersonalityDetail:    "Personality details: %s",
		SpeechStyleBase:      "Speaking style: %s",
		SpeechStyleDetail:    "Speaking style details: %s",
		SectionResponseStyle: "# Response style",
		ResponseLength: [5]string{
			"Answer as briefly as possible, in two words or fewer.",
			"Answer briefly, in two to four words.",
			"Answer at a standard length, in four to eight words.",
			"Answer in detail, in eight to fifteen words.",
			"Answer in great detail, in more than fifteen words.",
		},
		ConsistentStyle: "Keep a consistent personality and response style, for example by not always saying the same thing",
		Empathy:         "Stay close to the user's feelings",
		Soothing:        "Aim for conversation that comforts the user, a lonely elderly person",
		SectionUser:     "# About the user",
		UserName:        "Name: %s",
		UserAge:         "Age: %s",
		UserAgeValue:    "%s",
		UserGender:      "Gender: %s",
		UserHobbies:     "Hobbies: %s",
		NotSpecified:    "not specified",
		SectionRecent:   "# Recent conversation",
		RecentIntro:     "Below is the recent conversation between the user and the AI.",
		SpeakerUser:     "User",
		SpeakerAgent:    "AI",
		Closing:         "Based on the settings above, hold a natural conversation.",

		GreetingRequest: "Please greet me",
		WelcomeFallback: "Hello! Let's talk again today.",

		ParseFailed:    "Failed to parse the response: %s",
		EmptyResponse:  "The response was empty",
		RateLimited:    "Sorry, the API usage limit has been reached. Please wait a while and try again.",
		InvalidAPIKey:  "The API key is invalid",
		Forbidden:      "API access is forbidden",
		NotFound:       "The API endpoint was not found",
		ServerError:    "An error occurred on the OpenAI server",
		StatusError:    "An error occurred: %d",
		TransportError: "An error occurred: %s",

		CaptureNetworkTimeout: "Network timeout",
		CaptureNetwork:        "Network error",
		CaptureAudio:          "Audio input error",
		CaptureServer:         "Server error",
		CaptureSpeechTimeout:  "No speech detected",
		CaptureNoMatch:        "Speech not recognized",
		CaptureBusy:           "Recognizer busy",
		CapturePermission:     "Insufficient permissions",
		CaptureUnknown:        "Unknown error",
		CaptureUnavailable:    "Speech recognition is unavailable",
		CaptureStartFailed:    "Failed to start speech recognition",
		CaptureInitFailed:     "Failed to initialize speech recognition",
	}
}
