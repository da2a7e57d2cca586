package anilist

// GraphQL documents. Each query is paired with a typed response shape
// in types.go; variables are plain maps built at the call site.

const mediaFields = `
id
title { romaji english native }
synonyms
description(asHtml: false)
coverImage { large }
genres
tags { name }
status
startDate { year }
chapters
averageScore
popularity
staff(perPage: 4) {
  edges {
    role
    node { name { full } }
  }
}`

const searchQuery = `
query ($search: String, $page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { total currentPage hasNextPage }
    media(search: $search, type: MANGA, sort: SEARCH_MATCH) {` + mediaFields + `
    }
  }
}`

const detailsQuery = `
query ($id: Int) {
  Media(id: $id, type: MANGA) {` + mediaFields + `
  }
}`

const trendingQuery = `
query ($page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { total currentPage hasNextPage }
    media(type: MANGA, sort: TRENDING_DESC) {` + mediaFields + `
    }
  }
}`

const popularQuery = `
query ($page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { total currentPage hasNextPage }
    media(type: MANGA, sort: POPULARITY_DESC) {` + mediaFields + `
    }
  }
}`

const userListQuery = `
query ($userId: Int) {
  MediaListCollection(userId: $userId, type: MANGA) {
    lists {
      name
      status
      entries {
        status
        progress
        score(format: POINT_10_DECIMAL)
        media {` + mediaFields + `
        }
      }
    }
  }
}`

const saveEntryMutation = `
mutation ($mediaId: Int, $status: MediaListStatus, $progress: Int, $score: Float) {
  SaveMediaListEntry(mediaId: $mediaId, status: $status, progress: $progress, score: $score) {
    id
    status
    progress
    score
  }
}`

const viewerQuery = `
query {
  Viewer { id name }
}`
