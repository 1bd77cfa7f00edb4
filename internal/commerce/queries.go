package commerce

const subscriptionContractQuery = `
query SubscriptionContract($id: ID!) {
  subscriptionContract(id: $id) {
    id
    status
    customer {
      id
      email
      displayName
    }
  }
}`

const subscriptionBillingCycleQuery = `
query SubscriptionBillingCycle($contractId: ID!, $index: Int!) {
  subscriptionBillingCycle(billingCycleInput: {contractId: $contractId, selector: {index: $index}}) {
    cycleIndex
    status
    skipped
    billingAttemptExpectedDate
    billingAttempts(first: 50) {
      edges {
        node {
          id
          errorCode
          ready
          createdAt
        }
      }
    }
  }
}`

const billingCycleScheduleEditMutation = `
mutation SubscriptionBillingCycleScheduleEdit($billingCycleInput: SubscriptionBillingCycleInput!, $input: SubscriptionBillingCycleScheduleEditInput!) {
  subscriptionBillingCycleScheduleEdit(billingCycleInput: $billingCycleInput, input: $input) {
    billingCycle {
      cycleIndex
      skipped
      billingAttemptExpectedDate
    }
    userErrors {
      field
      message
      code
    }
  }
}`

const contractPauseMutation = `
mutation SubscriptionContractPause($subscriptionContractId: ID!) {
  subscriptionContractPause(subscriptionContractId: $subscriptionContractId) {
    contract {
      id
      status
    }
    userErrors {
      field
      message
      code
    }
  }
}`

const contractCancelMutation = `
mutation SubscriptionContractCancel($subscriptionContractId: ID!) {
  subscriptionContractCancel(subscriptionContractId: $subscriptionContractId) {
    contract {
      id
      status
    }
    userErrors {
      field
      message
      code
    }
  }
}`

const metaobjectByHandleQuery = `
query DunningSettings($handle: MetaobjectHandleInput!) {
  metaobjectByHandle(handle: $handle) {
    id
    fields {
      key
      value
    }
  }
}`

const metaobjectUpsertMutation = `
mutation DunningSettingsUpsert($handle: MetaobjectHandleInput!, $metaobject: MetaobjectUpsertInput!) {
  metaobjectUpsert(handle: $handle, metaobject: $metaobject) {
    metaobject {
      id
      fields {
        key
        value
      }
    }
    userErrors {
      field
      message
      code
    }
  }
}`
