package sessions

// DOM selectors for the external site. Centralized because a structure
// change on the site is the most common session-fatal failure and these
// are the first thing to re-check.
const (
	selSidebarProfile = `section[data-test="freelancer-sidebar-profile"]`
	selProfileTitle   = `a.profile-title`
	selAccountMenu    = `button[aria-describedby="options-theme-popover"]`
	selLogoutTrigger  = `button[data-cy="logout-trigger"]`
	selLoginUsername  = `#login_username`
	selLoginPassword  = `#login_password`
	selLoginRemember  = `#login_rememberme`
	selLoginAnswer    = `#login_answer`

	selJobsList   = `section[data-test="JobsList"]`
	selJobTile    = `article[data-test="JobTile"]`
	selTilePosted = `small[data-test="job-pubilshed-date"] span` // sic: the site misspells "published"
	selTileLink   = `a[data-test="job-tile-title-link UpLink"]`
	attrTileUID   = `data-ev-job-uid`

	selBestMatchTab = `button[data-test="tab-best-matches"]`
	selFeedTile     = `section[data-ev-sublocation="job_feed_tile"]`
	selFeedPosted   = `span[data-test="posted-on"]`
	selFeedLink     = `a[data-ev-label="link"]`
	attrFeedUID     = `data-ev-opening_uid`

	selDetailTitle     = `div.job-details-content h4 span`
	selClientLocation  = `li[data-qa="client-location"] strong`
	selClientStats     = `li[data-qa="client-job-posting-stats"] div`
	selClientSpend     = `li strong[data-qa="client-spend"] span span`
	selClientSince     = `li[data-qa="client-contract-date"] small`
	selPaymentVerified = `div.payment-verified`
	selDetailSummary   = `div.job-details-content p.multiline-text`
	selDurationType    = `div[data-cy*="duration"]`
	selDurationValue   = `div[data-cy*="duration"] + strong > span`
	selFixedPrice      = `div[data-cy="fixed-price"] + div strong`
	selHourlyRate      = `div[data-cy="clock-timelog"] + div strong`
	selSkills          = `div.skills-list span span a div div`
	selQualifications  = `ul.qualification-items span.icons div`
	selQualificationUL = `ul.qualification-items`
	selQuestionsBlock  = `section[data-test="Questions"]`
	selQuestionItems   = `section[data-test="Questions"] ol li`

	selSubmitProposal    = `button[data-cy="submit-proposal-button"]`
	selAlertContent      = `div.air3-alert-content`
	selProfileDropdown   = `div.fe-proposal-settings-special-profile`
	selDropdownToggle    = `div.fe-proposal-settings-special-profile div[data-test="dropdown-toggle"]`
	selDropdownMenu      = `ul#dropdown-menu`
	selDropdownTitle     = `div.fe-proposal-settings-special-profile div.air3-dropdown-toggle-title`
	selCoverLetter       = `textarea[aria-labelledby="cover_letter_label"]`
	selQuestionContainer = `div.fe-proposal-job-questions`
)
