// Package review manages review periods, the windows in which score cards
// are planned and evaluated.
//
// A period is either Open or Closed and is_active mirrors that status. At
// most one live period is open: opening a period closes every other open
// one in the same transaction. Names are unique case-insensitively among
// live periods and deletes are soft.
//
// Creating a period needs both the HR Admin role and create_review_period.
// The other mutations need the matching permission only.
package review
